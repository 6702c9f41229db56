package matchmaker

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/types"
)

// Guard re-evaluates the voteable predicate for a specific ship event at
// submission time. The world can change between token issue and submit
// (certification revoked, threshold crossed, membership added); failing
// here is a normal rejection, not a fault.
type Guard struct {
	db  *gorm.DB
	cfg config.Config
}

func NewGuard(db *gorm.DB, cfg config.Config) Guard {
	return Guard{db: db, cfg: cfg}
}

func (g Guard) Check(ctx context.Context, voterID, shipEventID uint64) error {
	var ev types.ShipEvent
	if err := g.db.WithContext(ctx).First(&ev, "id = ?", shipEventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrStaleShipEvent
		}
		return err
	}
	if ev.CertificationStatus != types.CertApproved {
		return types.ErrStaleShipEvent
	}
	if ev.VotesCount >= uint32(g.cfg.VotesRequiredForPayout) {
		return types.ErrStaleShipEvent
	}

	var owned int64
	if err := g.db.WithContext(ctx).Model(&types.Project{}).
		Where("id = ? AND owner_id = ?", ev.ProjectID, voterID).
		Count(&owned).Error; err != nil {
		return err
	}
	var member int64
	if err := g.db.WithContext(ctx).Model(&types.ProjectMember{}).
		Where("project_id = ? AND voter_id = ?", ev.ProjectID, voterID).
		Count(&member).Error; err != nil {
		return err
	}
	if owned > 0 || member > 0 {
		return types.ErrStaleShipEvent
	}

	var voted int64
	if err := g.db.WithContext(ctx).Model(&types.Vote{}).
		Where("ship_event_id = ? AND voter_id = ?", shipEventID, voterID).
		Count(&voted).Error; err != nil {
		return err
	}
	if voted > 0 {
		return types.ErrDuplicateVote
	}
	return nil
}
