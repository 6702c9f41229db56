package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfest/ship-votes/src/api/types"
)

const testFingerprint = "fp-browser-abc"

func TestIssueVerifyRoundtrip(t *testing.T) {
	svc := NewService("secret-a", "", 10*time.Minute)

	raw, err := svc.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	shipID, err := svc.Verify(raw, 7, testFingerprint)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), shipID)
}

func TestVerifyReturnsEmbeddedShipEvent(t *testing.T) {
	// The submission endpoint trusts only the embedded id: a token issued
	// for ship event 1 can never register a vote against ship event 2.
	svc := NewService("secret-a", "", 10*time.Minute)

	raw, err := svc.Issue(7, 1, testFingerprint)
	require.NoError(t, err)

	shipID, err := svc.Verify(raw, 7, testFingerprint)
	require.NoError(t, err)
	assert.NotEqual(t, uint64(2), shipID)
	assert.Equal(t, uint64(1), shipID)
}

func TestVerifyRejectsWrongVoter(t *testing.T) {
	svc := NewService("secret-a", "", 10*time.Minute)

	raw, err := svc.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	_, err = svc.Verify(raw, 8, testFingerprint)
	assert.ErrorIs(t, err, types.ErrTokenInvalid)
}

func TestVerifyRejectsWrongFingerprint(t *testing.T) {
	svc := NewService("secret-a", "", 10*time.Minute)

	raw, err := svc.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	_, err = svc.Verify(raw, 7, "fp-other-device")
	assert.ErrorIs(t, err, types.ErrTokenInvalid)
}

func TestVerifyRejectsTampering(t *testing.T) {
	svc := NewService("secret-a", "", 10*time.Minute)

	raw, err := svc.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	mangled := []byte(raw)
	mid := len(mangled) / 2
	if mangled[mid] == 'A' {
		mangled[mid] = 'B'
	} else {
		mangled[mid] = 'A'
	}
	_, err = svc.Verify(string(mangled), 7, testFingerprint)
	assert.ErrorIs(t, err, types.ErrTokenInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	// Issued 30 minutes ago with a 10-minute window: verification fails
	// and the client has to re-request matchmaking.
	svc := NewService("secret-a", "", 10*time.Minute)
	issuedAt := time.Now().Add(-30 * time.Minute)
	svc.now = func() time.Time { return issuedAt }

	raw, err := svc.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(raw, 7, testFingerprint)
	assert.ErrorIs(t, err, types.ErrTokenInvalid)
}

func TestKeyRotationGrace(t *testing.T) {
	old := NewService("secret-old", "", 10*time.Minute)
	raw, err := old.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	rotated := NewService("secret-new", "secret-old", 10*time.Minute)
	shipID, err := rotated.Verify(raw, 7, testFingerprint)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), shipID)

	// Without the grace key the old token dies immediately.
	hard := NewService("secret-new", "", 10*time.Minute)
	_, err = hard.Verify(raw, 7, testFingerprint)
	assert.ErrorIs(t, err, types.ErrTokenInvalid)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	forger := NewService("attacker-key", "", 10*time.Minute)
	raw, err := forger.Issue(7, 42, testFingerprint)
	require.NoError(t, err)

	svc := NewService("secret-a", "", 10*time.Minute)
	_, err = svc.Verify(raw, 7, testFingerprint)
	assert.ErrorIs(t, err, types.ErrTokenInvalid)
}
