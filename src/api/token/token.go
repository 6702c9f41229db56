package token

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/shipfest/ship-votes/src/api/types"
)

const envelopeVersion = "1"

// Service issues and verifies suggestion tokens: short-lived signed
// envelopes binding (voter, ship event, client fingerprint). Stateless;
// expiry is a pure function of the embedded timestamp at verify time.
type Service struct {
	key     []byte
	prevKey []byte // grace overlap after a key rotation; may be nil
	ttl     time.Duration
	now     func() time.Time
}

func NewService(secret, previous string, ttl time.Duration) *Service {
	s := &Service{key: []byte(secret), ttl: ttl, now: time.Now}
	if previous != "" {
		s.prevKey = []byte(previous)
	}
	return s
}

// FingerprintHash reduces a raw client fingerprint to the digest embedded
// in the envelope.
func FingerprintHash(fingerprint string) string {
	sum := blake2b.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:16])
}

func (s *Service) Issue(voterID, shipEventID uint64, fingerprint string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"ver":  envelopeVersion,
		"sub":  strconv.FormatUint(voterID, 10),
		"ship": strconv.FormatUint(shipEventID, 10),
		"fph":  FingerprintHash(fingerprint),
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
		"jti":  uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature, expiry, version and the (voter, fingerprint)
// binding. On success it returns the embedded ship event id, the only id
// the submission path may trust. Every failure is ErrTokenInvalid so a
// client cannot probe which check tripped.
func (s *Service) Verify(raw string, voterID uint64, fingerprint string) (uint64, error) {
	claims, err := s.parse(raw, s.key)
	if err != nil && len(s.prevKey) > 0 {
		claims, err = s.parse(raw, s.prevKey)
	}
	if err != nil {
		return 0, types.ErrTokenInvalid
	}
	if v, _ := claims["ver"].(string); v != envelopeVersion {
		return 0, types.ErrTokenInvalid
	}
	if sub, _ := claims["sub"].(string); sub != strconv.FormatUint(voterID, 10) {
		return 0, types.ErrTokenInvalid
	}
	if fph, _ := claims["fph"].(string); fph != FingerprintHash(fingerprint) {
		return 0, types.ErrTokenInvalid
	}
	ship, _ := claims["ship"].(string)
	id, perr := strconv.ParseUint(ship, 10, 64)
	if perr != nil || id == 0 {
		return 0, types.ErrTokenInvalid
	}
	return id, nil
}

func (s *Service) parse(raw string, key []byte) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(raw,
		func(t *jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, types.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, types.ErrTokenInvalid
	}
	return claims, nil
}
