package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/data"
	"github.com/shipfest/ship-votes/src/api/payout"
	"github.com/shipfest/ship-votes/src/api/spam"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/api/webserver"
	"github.com/shipfest/ship-votes/src/logging"
)

var allModels = []interface{}{
	&types.Voter{}, &types.Project{}, &types.ProjectMember{},
	&types.ShipEvent{}, &types.Vote{}, &types.LedgerEntry{},
}

func migrate(db *gorm.DB) {
	err := db.AutoMigrate(allModels...)

	if err == nil {
		return
	}

	logging.Log.Warnf("auto-migrate failed (%v) - dropping & recreating schema", err)
	_ = db.Migrator().DropTable(
		"ledger_entries", "votes", "ship_events",
		"project_members", "projects", "voters",
	)
	if err := db.AutoMigrate(allModels...); err != nil {
		logging.Log.Fatalf("migrate after drop: %v", err)
	}
}

func main() {
	logging.Bootstrap()
	cfg := config.Load()

	db := data.MustMySQL(cfg.MySQLDSN)
	migrate(db)

	rdb := data.MustRedis(cfg.RedisURL)

	ctx, cancel := context.WithCancel(context.Background())
	go payout.RunWorker(ctx, db, rdb, cfg)
	go spam.RunScheduler(ctx, spam.NewDetector(db, cfg), cfg.SpamBatchInterval)

	router := webserver.New(cfg, db, rdb)
	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.Fatalf("http: %v", err)
		}
	}()
	logging.Log.Infof("ship-votes API listening on %s", cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
