package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"

	"math-problem-service/internal/app"
	"math-problem-service/internal/config"
	"math-problem-service/internal/infra/memory"
	"math-problem-service/internal/infra/postgres"
	"math-problem-service/internal/infra/sqlite"
)

// openStore builds the configured session repository. The returned close
// function releases its connections.
func openStore(ctx context.Context, cfg config.Config) (app.SessionRepository, func(), error) {
	switch driver := cfg.StoreDriver(); driver {
	case config.StoreMemory:
		log.Printf("using in-memory store; data is lost on restart")
		return memory.NewSessionStore(), func() {}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.StorePostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
