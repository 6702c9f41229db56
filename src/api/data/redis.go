package data

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	priorityTierKey = "shipvotes:priority_projects"
	streamPayouts   = "shipvotes.payouts"
	streamSummaries = "shipvotes.summaries"
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// PriorityProjects returns the operator-maintained set of project ids that
// get guaranteed matchmaking coverage.
func PriorityProjects(ctx context.Context, rdb *redis.Client) (map[uint64]bool, error) {
	members, err := rdb.SMembers(ctx, priorityTierKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]bool, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		out[id] = true
	}
	return out, nil
}

func AddPriorityProject(ctx context.Context, rdb *redis.Client, projectID uint64) error {
	return rdb.SAdd(ctx, priorityTierKey, strconv.FormatUint(projectID, 10)).Err()
}

func RemovePriorityProject(ctx context.Context, rdb *redis.Client, projectID uint64) error {
	return rdb.SRem(ctx, priorityTierKey, strconv.FormatUint(projectID, 10)).Err()
}

// EnqueuePayout schedules the payout calculator for a ship event.
// At-least-once is fine: the calculator is idempotent.
func EnqueuePayout(ctx context.Context, rdb *redis.Client, shipEventID uint64) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPayouts,
		Values: map[string]interface{}{"ship_event_id": strconv.FormatUint(shipEventID, 10)},
	}).Result()
	return err
}

// ReadPayoutJobs waits a bounded time for payout jobs after lastID ("0" or
// "$"). An empty batch is not an error; the caller uses the idle beat for
// its reconciliation sweep.
func ReadPayoutJobs(ctx context.Context, rdb *redis.Client, lastID string) ([]redis.XMessage, string, error) {
	streams, err := rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{streamPayouts, lastID},
		Count:   16,
		Block:   5 * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, lastID, nil
		}
		return nil, lastID, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	if len(msgs) > 0 {
		lastID = msgs[len(msgs)-1].ID
	}
	return msgs, lastID, nil
}

// PublishVoteSummary hands an opt-in vote summary to the external
// notification dispatcher. Delivery is its problem, not ours.
func PublishVoteSummary(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamSummaries,
		Values: payload,
	}).Result()
	return err
}
