package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/redisx"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage/postgres"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/sweep"
	"github.com/redis/go-redis/v9"
)

type deps struct {
	pool   *db.Pool
	store  *postgres.Store
	outbox *outbox.Repository
	// rdb is nil when REDIS_URL is unset.
	rdb *redis.Client
}

func openDeps(ctx context.Context, s settings, logger *slog.Logger) (*deps, error) {
	pool, err := db.Open(ctx, s.databaseURL, db.PoolOptions{AppName: s.service})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if s.autoMigrate {
		n, err := migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("migrations applied", "count", n)
	}
	repo := outbox.NewRepository()
	d := &deps{pool: pool, store: postgres.New(pool, repo), outbox: repo}

	if s.redisURL != "" {
		rdb, err := redisx.Open(ctx, s.redisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		d.rdb = rdb
	}
	return d, nil
}

func (d *deps) close() {
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
	d.pool.Close()
}

// newSweeper guards runs across instances with a Redis lease when Redis is
// configured; otherwise only within this process.
func newSweeper(d *deps, appts sweep.Transitioner, s settings, logger *slog.Logger) *sweep.Sweeper {
	cfg := sweep.Config{DefaultZone: s.defaultZone}
	if d.rdb != nil {
		cfg.Lease = redisx.NewLock(d.rdb, s.service+":sweep", s.sweepLease)
	}
	return sweep.NewSweeper(d.store, appts, clock.System{}, logger, cfg)
}
