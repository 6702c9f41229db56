package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/logging"
)

// Composite combines a vote's four category scores into one number.
// Pluggable pending a decision on weighted scoring; the default is the
// plain mean.
type Composite func(types.Vote) float64

func MeanComposite(v types.Vote) float64 {
	s := v.Scores()
	return float64(s[0]+s[1]+s[2]+s[3]) / 4
}

// Calculator applies the one-time payout for a ship event whose voting
// concluded. Safe to invoke any number of times: the precondition check
// plus the conditional write make duplicates no-ops.
type Calculator struct {
	db        *gorm.DB
	cfg       config.Config
	composite Composite
}

func NewCalculator(db *gorm.DB, cfg config.Config) *Calculator {
	return &Calculator{db: db, cfg: cfg, composite: MeanComposite}
}

// WithComposite swaps the scoring strategy.
func (c *Calculator) WithComposite(f Composite) *Calculator {
	c.composite = f
	return c
}

// Apply computes and writes payout and multiplier and credits the owner's
// ledger. A failed precondition is a silent no-op; losing the conditional
// write to a concurrent run returns ErrPayoutApplied, which is benign.
func (c *Calculator) Apply(ctx context.Context, shipEventID uint64) error {
	var ev types.ShipEvent
	if err := c.db.WithContext(ctx).First(&ev, "id = ?", shipEventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logging.Log.Warnf("payout: ship event %d vanished, skipping", shipEventID)
			return nil
		}
		return err
	}
	if ev.CertificationStatus != types.CertApproved ||
		ev.VotesCount < uint32(c.cfg.VotesRequiredForPayout) ||
		ev.Payout != nil {
		logging.Log.Debugf("payout: ship event %d not eligible, no-op", shipEventID)
		return nil
	}

	raw, err := c.rawScore(ctx, shipEventID)
	if err != nil {
		return err
	}
	peers, err := c.peerScores(ctx, shipEventID)
	if err != nil {
		return err
	}

	pct := PercentileRank(raw, peers)
	rate := Rate(pct, c.cfg.PayoutLow, c.cfg.PayoutHigh, c.cfg.PayoutGamma)
	amount := ev.Hours * rate * c.cfg.TicketsPerDollar
	multiplier := rate * c.cfg.TicketsPerDollar

	var project types.Project
	if err := c.db.WithContext(ctx).First(&project, "id = ?", ev.ProjectID).Error; err != nil {
		return err
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		// The payout IS NULL predicate is the single-writer lock; a
		// concurrent duplicate run updates zero rows.
		res := tx.Model(&types.ShipEvent{}).
			Where("id = ? AND payout IS NULL", shipEventID).
			Updates(map[string]interface{}{
				"payout":     amount,
				"multiplier": multiplier,
				"paid_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrPayoutApplied
		}
		return tx.Create(&types.LedgerEntry{
			BeneficiaryID: project.OwnerID,
			SourceType:    "ship_event",
			SourceID:      shipEventID,
			Tickets:       amount,
			Memo:          fmt.Sprintf("payout for ship event %d (p%.0f)", shipEventID, pct),
		}).Error
	})
	if err != nil {
		return err
	}

	logging.Log.Infof("payout: ship event %d paid %.2f tickets at x%.2f (p%.0f)", shipEventID, amount, multiplier, pct)
	return nil
}

// rawScore averages vote composites, excluding suspicious votes. If the
// detector tainted every vote the average falls back to the full set so a
// concluded event still resolves.
func (c *Calculator) rawScore(ctx context.Context, shipEventID uint64) (float64, error) {
	var vs []types.Vote
	if err := c.db.WithContext(ctx).Where("ship_event_id = ?", shipEventID).Find(&vs).Error; err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	clean := vs[:0:0]
	for _, v := range vs {
		if !v.Suspicious {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		clean = vs
	}
	var sum float64
	for _, v := range clean {
		sum += c.composite(v)
	}
	return sum / float64(len(clean)), nil
}

// peerScores are the raw scores of every other ship event whose voting has
// concluded (approved, at or over threshold). Already-paid events stay in
// the pool on purpose, even though only unpaid ones are strictly awaiting
// payout: dropping each event as it settles would rank later payouts
// against an ever-shrinking field and inflate them. Re-ranking is O(total
// votes on concluded events) per payout; fine at current scale, revisit
// with an order-statistic index if it shows up in profiles.
func (c *Calculator) peerScores(ctx context.Context, shipEventID uint64) ([]float64, error) {
	var ids []uint64
	if err := c.db.WithContext(ctx).Model(&types.ShipEvent{}).
		Where("certification_status = ?", types.CertApproved).
		Where("votes_count >= ?", c.cfg.VotesRequiredForPayout).
		Where("id <> ?", shipEventID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var vs []types.Vote
	if err := c.db.WithContext(ctx).Where("ship_event_id IN ?", ids).Find(&vs).Error; err != nil {
		return nil, err
	}
	sums := map[uint64]float64{}
	counts := map[uint64]int{}
	sumsAll := map[uint64]float64{}
	countsAll := map[uint64]int{}
	for _, v := range vs {
		sumsAll[v.ShipEventID] += c.composite(v)
		countsAll[v.ShipEventID]++
		if !v.Suspicious {
			sums[v.ShipEventID] += c.composite(v)
			counts[v.ShipEventID]++
		}
	}
	scores := make([]float64, 0, len(ids))
	for _, id := range ids {
		switch {
		case counts[id] > 0:
			scores = append(scores, sums[id]/float64(counts[id]))
		case countsAll[id] > 0:
			scores = append(scores, sumsAll[id]/float64(countsAll[id]))
		}
	}
	return scores, nil
}
