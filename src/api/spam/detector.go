package spam

import (
	"context"
	"fmt"
	"time"

	"github.com/OneOfOne/xxhash"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/logging"
)

// Heuristic bars. These are detection mechanism, not economic policy, so
// they live here rather than in config.
const (
	instantDecisionMs   = 4000
	patternClusterMin   = 5   // identical score tuples from one voter
	suspiciousRatioBar  = 0.5 // flagged share that marks a spammer
	velocityBarPerHour  = 30.0
	patternDiversityBar = 0.2 // distinct tuples / total below this is anomalous

	flagBatchSize = 500
)

// Detector runs out-of-band over recorded votes. It never touches the
// submission path; a payout computed before a batch run catches a spammer
// is an accepted lag, not a bug.
type Detector struct {
	db  *gorm.DB
	cfg config.Config
}

func NewDetector(db *gorm.DB, cfg config.Config) *Detector {
	return &Detector{db: db, cfg: cfg}
}

// Run executes one batch pass: per-vote flags first, then the aggregate
// voter classification that feeds on them.
func (d *Detector) Run(ctx context.Context) error {
	if err := d.flagVotes(ctx); err != nil {
		return err
	}
	return d.classifyVoters(ctx)
}

// Signature collapses a vote's four scores into a pattern key for cluster
// detection.
func Signature(v types.Vote) uint64 {
	h := xxhash.New64()
	fmt.Fprintf(h, "%d|%d|%d|%d", v.Originality, v.Technical, v.Usability, v.Storytelling)
	return h.Sum64()
}

// Suspicious applies the per-vote heuristics. clusterSize is how many of
// the voter's votes share this vote's score pattern.
func Suspicious(v types.Vote, clusterSize int) bool {
	if v.DecisionTimeMs > 0 && v.DecisionTimeMs < instantDecisionMs {
		return true
	}
	if maximal(v) && !v.DemoClicked && !v.RepoClicked {
		return true
	}
	return clusterSize >= patternClusterMin
}

func maximal(v types.Vote) bool {
	for _, s := range v.Scores() {
		if s != 5 {
			return false
		}
	}
	return true
}

// flagVotes walks the unflagged votes in id-keyed pages so one pass never
// holds more than a page in memory no matter how far the table has grown.
func (d *Detector) flagVotes(ctx context.Context) error {
	clusters, err := d.clusterSizes(ctx)
	if err != nil {
		return err
	}

	flagged := 0
	var cursor uint64
	for {
		var page []types.Vote
		if err := d.db.WithContext(ctx).
			Where("suspicious = ?", false).
			Where("id > ?", cursor).
			Order("id ASC").
			Limit(flagBatchSize).
			Find(&page).Error; err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		cursor = page[len(page)-1].ID

		var flag []uint64
		for _, v := range page {
			if Suspicious(v, clusters[v.VoterID][Signature(v)]) {
				flag = append(flag, v.ID)
			}
		}
		if len(flag) > 0 {
			if err := d.db.WithContext(ctx).Model(&types.Vote{}).
				Where("id IN ?", flag).
				Update("suspicious", true).Error; err != nil {
				return err
			}
			flagged += len(flag)
		}
	}
	if flagged > 0 {
		logging.Log.Infof("spam: flagged %d votes", flagged)
	}
	return nil
}

// clusterSizes aggregates identical score tuples per voter in SQL,
// counting every vote flagged or not, and keeps only clusters big enough
// to trip the heuristic. Absent entries read as zero.
func (d *Detector) clusterSizes(ctx context.Context) (map[uint64]map[uint64]int, error) {
	type clusterRow struct {
		VoterID      uint64
		Originality  int
		Technical    int
		Usability    int
		Storytelling int
		N            int
	}
	var rows []clusterRow
	if err := d.db.WithContext(ctx).Model(&types.Vote{}).
		Select("voter_id, originality, technical, usability, storytelling, count(*) AS n").
		Group("voter_id, originality, technical, usability, storytelling").
		Having("count(*) >= ?", patternClusterMin).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	clusters := map[uint64]map[uint64]int{}
	for _, r := range rows {
		if clusters[r.VoterID] == nil {
			clusters[r.VoterID] = map[uint64]int{}
		}
		sig := Signature(types.Vote{
			Originality: r.Originality, Technical: r.Technical,
			Usability: r.Usability, Storytelling: r.Storytelling,
		})
		clusters[r.VoterID][sig] = r.N
	}
	return clusters, nil
}

func (d *Detector) classifyVoters(ctx context.Context) error {
	var candidates []uint64
	err := d.db.WithContext(ctx).Model(&types.Vote{}).
		Group("voter_id").
		Having("count(*) > ?", d.cfg.SpamMinVotes).
		Pluck("voter_id", &candidates).Error
	if err != nil {
		return err
	}

	for _, id := range candidates {
		var voter types.Voter
		if err := d.db.WithContext(ctx).First(&voter, "id = ?", id).Error; err != nil {
			continue
		}
		if voter.SpamLockedAt != nil {
			continue
		}
		spammer, why, err := d.classify(ctx, id)
		if err != nil {
			return err
		}
		if !spammer {
			continue
		}
		if err := d.lock(ctx, id); err != nil {
			return err
		}
		logging.Log.Warnf("spam: locked voter %d (%s)", id, why)
	}
	return nil
}

// classify weighs the three aggregate signals; two of three mark a
// spammer.
func (d *Detector) classify(ctx context.Context, voterID uint64) (bool, string, error) {
	var vs []types.Vote
	if err := d.db.WithContext(ctx).Where("voter_id = ?", voterID).Find(&vs).Error; err != nil {
		return false, "", err
	}
	if len(vs) == 0 {
		return false, "", nil
	}

	signals := 0
	why := ""

	sus := 0
	distinct := map[uint64]bool{}
	first, last := vs[0].CreatedAt, vs[0].CreatedAt
	for _, v := range vs {
		if v.Suspicious {
			sus++
		}
		distinct[Signature(v)] = true
		if v.CreatedAt.Before(first) {
			first = v.CreatedAt
		}
		if v.CreatedAt.After(last) {
			last = v.CreatedAt
		}
	}

	ratio := float64(sus) / float64(len(vs))
	if ratio >= suspiciousRatioBar {
		signals++
		why += fmt.Sprintf("suspicious ratio %.2f ", ratio)
	}

	span := last.Sub(first).Hours()
	if span < 1 {
		span = 1
	}
	velocity := float64(len(vs)) / span
	if velocity >= velocityBarPerHour {
		signals++
		why += fmt.Sprintf("velocity %.1f/h ", velocity)
	}

	diversity := float64(len(distinct)) / float64(len(vs))
	if diversity <= patternDiversityBar {
		signals++
		why += fmt.Sprintf("pattern diversity %.2f", diversity)
	}

	return signals >= 2, why, nil
}

// lock excludes the voter from future matchmaking and retro-taints their
// history for audit.
func (d *Detector) lock(ctx context.Context, voterID uint64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&types.Voter{}).
			Where("id = ?", voterID).
			Update("spam_locked_at", now).Error; err != nil {
			return err
		}
		return tx.Model(&types.Vote{}).
			Where("voter_id = ?", voterID).
			Update("suspicious", true).Error
	})
}
