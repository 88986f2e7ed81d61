package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sessionguard/authgate/internal/api/handler"
	"github.com/sessionguard/authgate/internal/core/ports"
	"github.com/sessionguard/authgate/internal/infrastructure/config"
	mongodb "github.com/sessionguard/authgate/internal/infrastructure/db/mongo"
	"github.com/sessionguard/authgate/internal/infrastructure/db/postgres"
	redisdb "github.com/sessionguard/authgate/internal/infrastructure/db/redis"
)

const sweepInterval = time.Hour

type linkSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type stores struct {
	users   ports.UserRepository
	links   ports.MagicLinkRepository
	pingers []handler.Pinger
	sweeper linkSweeper
	closers []func(context.Context) error
}

// openStores connects only the backends the configuration selects.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{}

	var pg *sql.DB
	if cfg.StoreBackend == config.BackendPostgres || cfg.MagicLinkBackend == config.BackendPostgres {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			st.close(log)
			return nil, err
		}
		st.pingers = append(st.pingers, postgres.NewPinger(db))
		pg = db
	}

	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  "authgate",
		})
		if err != nil {
			st.close(log)
			return nil, err
		}
		st.closers = append(st.closers, client.Disconnect)
		repo := mongodb.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			st.close(log)
			return nil, err
		}
		st.users = repo
		st.pingers = append(st.pingers, mongodb.NewPinger(db))
	case config.BackendPostgres:
		st.users = postgres.NewUserRepository(pg)
	default:
		st.close(log)
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	switch cfg.MagicLinkBackend {
	case config.BackendRedis:
		client, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			st.close(log)
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return client.Close() })
		st.links = redisdb.NewMagicLinkStore(client, "")
		st.pingers = append(st.pingers, redisdb.NewPinger(client))
	case config.BackendPostgres:
		repo := postgres.NewMagicLinkRepository(pg)
		st.links = repo
		st.sweeper = repo
	default:
		st.close(log)
		return nil, fmt.Errorf("unsupported magic link backend %q", cfg.MagicLinkBackend)
	}

	return st, nil
}

func (s *stores) close(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	}
	s.closers = nil
}

// sweepExpiredLinks deletes expired rows; Redis expires its keys itself.
func sweepExpiredLinks(ctx context.Context, sweeper linkSweeper, log zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sweeper.DeleteExpired(ctx, now.UTC())
			if err != nil {
				log.Error().Err(err).Msg("sweeping expired magic links")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("swept expired magic links")
			}
		}
	}
}
