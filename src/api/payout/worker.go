package payout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/data"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/jobs"
	"github.com/shipfest/ship-votes/src/logging"
)

const sweepEvery = time.Minute

// RunWorker consumes the payout job stream until the context ends.
// Transient failures retry with backoff; permanent ones are logged and
// skipped rather than crash-looping the worker. A periodic sweep pays any
// event that concluded without a stream job landing.
func RunWorker(ctx context.Context, db *gorm.DB, rdb *redis.Client, cfg config.Config) {
	calc := NewCalculator(db, cfg)
	lastID := "0" // replay whatever backlog a previous run left behind
	var lastSweep time.Time
	for ctx.Err() == nil {
		if time.Since(lastSweep) >= sweepEvery {
			if err := sweep(ctx, db, calc, cfg); err != nil && ctx.Err() == nil {
				logging.Log.Errorf("payout: sweep: %v", err)
			}
			lastSweep = time.Now()
		}

		msgs, next, err := data.ReadPayoutJobs(ctx, rdb, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Log.Errorf("payout: read jobs: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		lastID = next

		for _, msg := range msgs {
			raw, _ := msg.Values["ship_event_id"].(string)
			id, perr := strconv.ParseUint(raw, 10, 64)
			if perr != nil || id == 0 {
				logging.Log.Warnf("payout: malformed job %s, skipping", msg.ID)
				continue
			}
			err := jobs.Retry(ctx, 5, 2*time.Second, func(ctx context.Context) error {
				err := calc.Apply(ctx, id)
				switch {
				case err == nil:
					return nil
				case errors.Is(err, types.ErrPayoutApplied):
					logging.Log.Infof("payout: ship event %d already applied", id)
					return nil
				case logging.IsTransient(err):
					return err
				default:
					logging.Log.Errorf("payout: ship event %d failed permanently: %v", id, err)
					return nil
				}
			})
			if err != nil && ctx.Err() == nil {
				logging.Log.Errorf("payout: ship event %d gave up after retries: %v", id, err)
			}
		}
	}
}

// sweep settles every approved, at-threshold event still unpaid. The vote
// path stops further votes at the threshold, so a crossing whose enqueue
// was lost has no second trigger; this is its recovery. Apply is
// idempotent, making overlap with stream delivery harmless.
func sweep(ctx context.Context, db *gorm.DB, calc *Calculator, cfg config.Config) error {
	var ids []uint64
	if err := db.WithContext(ctx).Model(&types.ShipEvent{}).
		Where("certification_status = ?", types.CertApproved).
		Where("votes_count >= ?", cfg.VotesRequiredForPayout).
		Where("payout IS NULL").
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	for _, id := range ids {
		if err := calc.Apply(ctx, id); err != nil && !errors.Is(err, types.ErrPayoutApplied) {
			logging.Log.Errorf("payout: sweep ship event %d: %v", id, err)
		}
	}
	if len(ids) > 0 {
		logging.Log.Infof("payout: sweep settled %d ship events", len(ids))
	}
	return nil
}
