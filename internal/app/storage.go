package app

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/storefront/internal/dal/mysql"
	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/postgres"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

// storageBackend is what the configured engine needs at startup.
type storageBackend struct {
	dialect storage.Dialect
	open    pool.Opener
	migrate func(ctx context.Context) error
}

func newStorageBackend(v *viper.Viper) (storageBackend, error) {
	dialect, err := storage.ParseDialect(v.GetString("storage.driver"))
	if err != nil {
		return storageBackend{}, err
	}

	switch dialect {
	case storage.Postgres:
		cfg := postgresConfig(v)

		return storageBackend{
			dialect: dialect,
			open:    postgres.Opener(cfg),
			migrate: func(ctx context.Context) error {
				client, err := postgres.NewClient(ctx, cfg)
				if err != nil {
					return err
				}
				defer client.Close()

				return client.Migrate()
			},
		}, nil
	case storage.MySQL:
		cfg := mysqlConfig(v)

		return storageBackend{
			dialect: dialect,
			open:    mysql.Opener(cfg),
			migrate: func(ctx context.Context) error {
				client, err := mysql.NewClient(ctx, cfg)
				if err != nil {
					return err
				}
				defer client.Close()

				return client.Migrate()
			},
		}, nil
	default:
		return storageBackend{}, fmt.Errorf("%w: %q", storage.ErrUnknownDialect, dialect)
	}
}

// mustNewPool migrates the schema when enabled and opens the managed pool.
func mustNewPool(ctx context.Context, v *viper.Viper) *pool.Manager {
	backend, err := newStorageBackend(v)
	if err != nil {
		panic(err)
	}

	if v.GetBool("storage.migrate") {
		if err := backend.migrate(ctx); err != nil {
			panic(err)
		}
	}

	manager, err := pool.New(ctx, backend.dialect, backend.open, poolConfig(v))
	if err != nil {
		panic(err)
	}

	return manager
}
