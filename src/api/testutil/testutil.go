package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/logging"
)

// DB opens a fresh in-memory database carrying the full schema.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	if logging.Log == nil {
		logging.Log = logrus.New()
	}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		// Fixtures seed rows in whatever order the test reads best.
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection, or the pool hands out independent :memory: databases.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&types.Voter{}, &types.Project{}, &types.ProjectMember{},
		&types.ShipEvent{}, &types.Vote{}, &types.LedgerEntry{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Redis starts a miniredis and a client bound to it.
func Redis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// Config returns the policy constants the tests assume.
func Config() config.Config {
	return config.Config{
		SessionSecret:          "test-session-secret",
		TokenSecret:            "test-token-secret",
		TokenTTL:               10 * time.Minute,
		VotesRequiredForPayout: 20,
		PayoutLow:              2,
		PayoutHigh:             12,
		PayoutGamma:            1.75,
		TicketsPerDollar:       10,
		SpamMinVotes:           30,
		SpamBatchInterval:      time.Minute,
	}
}
