// Package app assembles the shared backend of the server and the usher
// agent: the remote store, the change feed and the selection store.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/config"
	"github.com/iliyamo/childcare-checkin/internal/database"
	"github.com/iliyamo/childcare-checkin/internal/prefs"
	"github.com/iliyamo/childcare-checkin/internal/remote"
	"github.com/iliyamo/childcare-checkin/internal/repository"
)

// Backend bundles the collaborators of a domain store.
type Backend struct {
	Remote remote.Store
	Broker changefeed.Broker
	Prefs  prefs.Store

	db  *sql.DB
	rdb *redis.Client
}

// OpenBackend connects the remote store selected by cfg.StoreDriver.  A
// nil rdb selects the in-process broker and selection store, which only
// reach devices running in the same process.
func OpenBackend(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{rdb: rdb}
	if rdb != nil {
		b.Broker = changefeed.NewRedisBroker(rdb, changefeed.WithBrokerLogger(logger.Named("feed")))
		b.Prefs = prefs.NewRedisStore(rdb, "childcare:selection")
	} else {
		logger.Warn("redis unavailable: change feed limited to this process, devices rely on polling")
		b.Broker = changefeed.NewMemoryBroker()
		b.Prefs = prefs.NewMemoryStore(time.Now)
	}

	switch cfg.StoreDriver {
	case "memory":
		b.Remote = remote.NewMemory(remote.WithPublisher(b.Broker), remote.WithLogger(logger))
	case "mysql", "":
		if err := database.Migrate(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, logger.Named("migrate")); err != nil {
			return nil, err
		}
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		b.db = db
		b.Remote = repository.NewRemote(db,
			repository.WithPublisher(b.Broker),
			repository.WithLogger(logger.Named("repository")))
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return b, nil
}

// Ping checks the database, when there is one.
func (b *Backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.PingContext(ctx)
}

// Close releases the database and Redis connections.
func (b *Backend) Close() error {
	var errs []error
	if b.db != nil {
		errs = append(errs, b.db.Close())
	}
	if b.rdb != nil {
		errs = append(errs, b.rdb.Close())
	}
	return errors.Join(errs...)
}
