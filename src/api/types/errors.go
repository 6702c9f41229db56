package types

import "errors"

var (
	// ErrTokenInvalid covers expired, forged and mismatched suggestion
	// tokens alike; callers must not learn which check failed.
	ErrTokenInvalid = errors.New("suggestion token invalid")

	// ErrStaleShipEvent means the ship event stopped being voteable between
	// token issue and vote submission. Recoverable: re-run matchmaking.
	ErrStaleShipEvent = errors.New("ship event no longer voteable")

	ErrDuplicateVote = errors.New("vote already recorded for this ship event")

	// ErrPayoutApplied is the idempotency guard tripping; benign.
	ErrPayoutApplied = errors.New("payout already applied")
)
