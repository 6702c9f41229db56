package votes

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/data"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/logging"
)

// Recorder persists votes. The (voter, ship event) unique index is the
// arbiter under concurrent submissions; a losing writer gets
// ErrDuplicateVote, never a silent drop.
type Recorder struct {
	db  *gorm.DB
	rdb *redis.Client
	cfg config.Config
}

func NewRecorder(db *gorm.DB, rdb *redis.Client, cfg config.Config) *Recorder {
	return &Recorder{db: db, rdb: rdb, cfg: cfg}
}

// Record inserts the vote and advances the ship event's counter in one
// transaction. Crossing VotesRequiredForPayout enqueues the payout job
// after commit; at-least-once is fine since the calculator is idempotent.
func (r *Recorder) Record(ctx context.Context, v *types.Vote) error {
	var crossed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(v).Error; err != nil {
			if isDuplicate(err) {
				return types.ErrDuplicateVote
			}
			return err
		}
		if err := tx.Model(&types.ShipEvent{}).
			Where("id = ?", v.ShipEventID).
			UpdateColumn("votes_count", gorm.Expr("votes_count + 1")).Error; err != nil {
			return err
		}
		var ev types.ShipEvent
		if err := tx.Select("votes_count").First(&ev, "id = ?", v.ShipEventID).Error; err != nil {
			return err
		}
		crossed = ev.VotesCount >= uint32(r.cfg.VotesRequiredForPayout)
		return nil
	})
	if err != nil {
		return err
	}

	if crossed {
		if err := data.EnqueuePayout(ctx, r.rdb, v.ShipEventID); err != nil {
			// The vote stands either way; the payout worker's sweep picks
			// up a crossing whose enqueue was dropped.
			logging.Log.Errorf("recorder: enqueue payout for ship event %d: %v", v.ShipEventID, err)
		}
	}
	r.publishSummary(ctx, v)
	return nil
}

func (r *Recorder) publishSummary(ctx context.Context, v *types.Vote) {
	var voter types.Voter
	if err := r.db.WithContext(ctx).First(&voter, "id = ?", v.VoterID).Error; err != nil {
		return
	}
	if !voter.SummaryOptIn {
		return
	}
	err := data.PublishVoteSummary(ctx, r.rdb, map[string]interface{}{
		"voter_id":      v.VoterID,
		"ship_event_id": v.ShipEventID,
		"project_id":    v.ProjectID,
		"originality":   v.Originality,
		"technical":     v.Technical,
		"usability":     v.Usability,
		"storytelling":  v.Storytelling,
	})
	if err != nil {
		logging.Log.Warnf("recorder: publish vote summary: %v", err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint")
}
