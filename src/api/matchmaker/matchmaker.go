package matchmaker

import (
	"context"
	"errors"
	"math/rand"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/data"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/logging"
)

// candidates fetched per query. The tier query runs on its own, so a
// priority event can never be crowded out of the page by the general pool.
const poolLimit = 256

// Matchmaker picks the next ship event a voter is shown. Priority-tier
// projects win deterministically; within a tier the fewest-voted events
// win, with random tie-breaks so the order cannot be steered.
type Matchmaker struct {
	db  *gorm.DB
	rdb *redis.Client
	cfg config.Config
}

func New(db *gorm.DB, rdb *redis.Client, cfg config.Config) *Matchmaker {
	return &Matchmaker{db: db, rdb: rdb, cfg: cfg}
}

// Next returns nil when the pool is exhausted; the caller treats that as
// "nothing left to vote on", not an error. Spam-locked voters always see
// an empty pool.
func (m *Matchmaker) Next(ctx context.Context, voterID uint64) (*types.ShipEvent, error) {
	var voter types.Voter
	if err := m.db.WithContext(ctx).First(&voter, "id = ?", voterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if voter.SpamLockedAt != nil {
		return nil, nil
	}

	priority, err := data.PriorityProjects(ctx, m.rdb)
	if err != nil {
		// Redis being down degrades to the general pool; it must not take
		// matchmaking with it.
		logging.Log.Warnf("matchmaker: priority tier unavailable: %v", err)
		priority = nil
	}
	if len(priority) > 0 {
		ids := make([]uint64, 0, len(priority))
		for id := range priority {
			ids = append(ids, id)
		}
		tier, err := m.eligible(ctx, voterID, ids)
		if err != nil {
			return nil, err
		}
		if len(tier) > 0 {
			return pickLeader(tier), nil
		}
	}

	events, err := m.eligible(ctx, voterID, nil)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return pickLeader(events), nil
}

// eligible fetches up to poolLimit voteable events for the voter, fewest
// voted first. A non-empty projectIDs restricts the pool to those projects.
func (m *Matchmaker) eligible(ctx context.Context, voterID uint64, projectIDs []uint64) ([]types.ShipEvent, error) {
	q := m.db.WithContext(ctx).
		Select("ship_events.*").
		Joins("JOIN projects ON projects.id = ship_events.project_id").
		Where("ship_events.certification_status = ?", types.CertApproved).
		Where("ship_events.votes_count < ?", m.cfg.VotesRequiredForPayout).
		Where("projects.owner_id <> ?", voterID).
		Where("NOT EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = ship_events.project_id AND pm.voter_id = ?)", voterID).
		Where("NOT EXISTS (SELECT 1 FROM votes v WHERE v.ship_event_id = ship_events.id AND v.voter_id = ?)", voterID)
	if len(projectIDs) > 0 {
		q = q.Where("ship_events.project_id IN ?", projectIDs)
	}
	var events []types.ShipEvent
	err := q.Order("ship_events.votes_count ASC").
		Limit(poolLimit).
		Find(&events).Error
	return events, err
}

// pickLeader picks at random among the fewest-voted events so voters
// cannot predict the next suggestion. pool is votes_count-ascending.
func pickLeader(pool []types.ShipEvent) *types.ShipEvent {
	min := pool[0].VotesCount
	n := 1
	for n < len(pool) && pool[n].VotesCount == min {
		n++
	}
	pick := pool[rand.Intn(n)]
	return &pick
}
