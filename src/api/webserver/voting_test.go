package webserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/testutil"
	"github.com/shipfest/ship-votes/src/api/token"
	"github.com/shipfest/ship-votes/src/api/types"
)

const testFP = "fp-test-device"

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB, config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	_, rdb := testutil.Redis(t)
	cfg := testutil.Config()
	return New(cfg, db, rdb), db, cfg
}

func sessionJWT(t *testing.T, secret string, voterID uint64) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatUint(voterID, 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func doJSON(r *gin.Engine, method, path, session string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Fingerprint", testFP)
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedWorld(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&types.Voter{ID: 1, Handle: "voter"}).Error)
	require.NoError(t, db.Create(&types.Voter{ID: 2, Handle: "owner"}).Error)
	require.NoError(t, db.Create(&types.Project{ID: 10, OwnerID: 2, Name: "project"}).Error)
	require.NoError(t, db.Create(&types.ShipEvent{
		ID: 100, ProjectID: 10, Title: "v1 launch",
		CertificationStatus: types.CertApproved, Hours: 10,
	}).Error)
}

func TestShowThenVoteFlow(t *testing.T) {
	r, db, cfg := newTestServer(t)
	seedWorld(t, db)
	session := sessionJWT(t, cfg.SessionSecret, 1)

	w := doJSON(r, http.MethodPost, "/v1/matchmaking/next", session, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var next struct {
		ShipEvent struct {
			ID uint64 `json:"id"`
		} `json:"shipEvent"`
		SuggestionToken string `json:"suggestionToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	assert.Equal(t, uint64(100), next.ShipEvent.ID)
	require.NotEmpty(t, next.SuggestionToken)

	w = doJSON(r, http.MethodPost, "/v1/votes", session, gin.H{
		"suggestionToken": next.SuggestionToken,
		"originality":     4, "technical": 5, "usability": 3, "storytelling": 4,
		"reason":         "clean build, nice writeup",
		"demoClicked":    true,
		"decisionTimeMs": 52000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var vote types.Vote
	require.NoError(t, db.First(&vote, "voter_id = ? AND ship_event_id = ?", 1, 100).Error)
	assert.Equal(t, 5, vote.Technical)
	var ev types.ShipEvent
	require.NoError(t, db.First(&ev, "id = ?", 100).Error)
	assert.Equal(t, uint32(1), ev.VotesCount)

	// Pool exhausted now; and the spent suggestion cannot vote twice.
	w = doJSON(r, http.MethodPost, "/v1/matchmaking/next", session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exhausted")

	w = doJSON(r, http.MethodPost, "/v1/votes", session, gin.H{
		"suggestionToken": next.SuggestionToken,
		"originality":     4, "technical": 5, "usability": 3, "storytelling": 4,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmitRejectsExpiredToken(t *testing.T) {
	r, db, cfg := newTestServer(t)
	seedWorld(t, db)
	session := sessionJWT(t, cfg.SessionSecret, 1)

	// Negative TTL mints a token that was already expired at issue.
	stale := token.NewService(cfg.TokenSecret, "", -20*time.Minute)
	raw, err := stale.Issue(1, 100, testFP)
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/v1/votes", session, gin.H{
		"suggestionToken": raw,
		"originality":     4, "technical": 5, "usability": 3, "storytelling": 4,
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "rematch")

	var count int64
	db.Model(&types.Vote{}).Count(&count)
	assert.Zero(t, count)
}

func TestSubmitRejectsFingerprintMismatch(t *testing.T) {
	r, db, cfg := newTestServer(t)
	seedWorld(t, db)
	session := sessionJWT(t, cfg.SessionSecret, 1)

	svc := token.NewService(cfg.TokenSecret, "", 10*time.Minute)
	raw, err := svc.Issue(1, 100, "fp-some-other-device")
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/v1/votes", session, gin.H{
		"suggestionToken": raw,
		"originality":     4, "technical": 5, "usability": 3, "storytelling": 4,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitValidatesScores(t *testing.T) {
	r, db, cfg := newTestServer(t)
	seedWorld(t, db)
	session := sessionJWT(t, cfg.SessionSecret, 1)

	svc := token.NewService(cfg.TokenSecret, "", 10*time.Minute)
	raw, err := svc.Issue(1, 100, testFP)
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/v1/votes", session, gin.H{
		"suggestionToken": raw,
		"originality":     9, "technical": 5, "usability": 3, "storytelling": 4,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutesRequireSession(t *testing.T) {
	r, _, _ := newTestServer(t)
	w := doJSON(r, http.MethodPost, "/v1/matchmaking/next", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doJSON(r, http.MethodPost, "/v1/votes", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminCertification(t *testing.T) {
	r, db, cfg := newTestServer(t)
	require.NoError(t, db.Create(&types.Voter{ID: 5, Handle: "staff", Admin: true}).Error)
	require.NoError(t, db.Create(&types.Voter{ID: 6, Handle: "pleb"}).Error)
	require.NoError(t, db.Create(&types.Project{ID: 10, OwnerID: 6, Name: "project"}).Error)
	require.NoError(t, db.Create(&types.ShipEvent{
		ID: 100, ProjectID: 10, CertificationStatus: types.CertPending, Hours: 3,
	}).Error)

	staff := sessionJWT(t, cfg.SessionSecret, 5)
	w := doJSON(r, http.MethodPost, "/v1/admin/certification", staff, gin.H{
		"shipEventId": 100, "status": "approved",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ev types.ShipEvent
	require.NoError(t, db.First(&ev, "id = ?", 100).Error)
	assert.Equal(t, types.CertApproved, ev.CertificationStatus)

	pleb := sessionJWT(t, cfg.SessionSecret, 6)
	w = doJSON(r, http.MethodPost, "/v1/admin/certification", pleb, gin.H{
		"shipEventId": 100, "status": "rejected",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestShipCreateAndGet(t *testing.T) {
	r, db, cfg := newTestServer(t)
	require.NoError(t, db.Create(&types.Voter{ID: 1, Handle: "owner"}).Error)
	require.NoError(t, db.Create(&types.Voter{ID: 2, Handle: "stranger"}).Error)
	require.NoError(t, db.Create(&types.Project{ID: 10, OwnerID: 1, Name: "project"}).Error)

	owner := sessionJWT(t, cfg.SessionSecret, 1)
	w := doJSON(r, http.MethodPost, "/v1/ships", owner, gin.H{
		"projectId": 10, "title": "beta milestone", "hours": 12.5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/v1/ships/%d", created.ID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), types.CertPending)

	stranger := sessionJWT(t, cfg.SessionSecret, 2)
	w = doJSON(r, http.MethodPost, "/v1/ships", stranger, gin.H{
		"projectId": 10, "title": "not mine", "hours": 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
