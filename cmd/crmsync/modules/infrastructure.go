package modules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	dbfs "github.com/himplant/crmsync/db"
	"github.com/himplant/crmsync/internal/boot"
	"github.com/himplant/crmsync/internal/config"
	"github.com/himplant/crmsync/internal/db"
	"github.com/himplant/crmsync/internal/journal"
	"github.com/himplant/crmsync/internal/logger"
)

// ConfigPathEnv names the environment variable holding the config file path.
const ConfigPathEnv = "CONFIG_PATH"

// InfrastructureModule provides configuration, logging and the sync journal.
var InfrastructureModule = fx.Module(
	"infrastructure",
	fx.Provide(
		ProvideConfig,
		boot.ProvideRuntimeConfig,
		ProvideLogger,
		provideJournalStore,
		provideSweeper,
	),
	fx.Invoke(startSweeper),
)

// ProvideConfig loads the configuration named by CONFIG_PATH.
func ProvideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv(ConfigPathEnv))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ProvideLogger initialises the process logger from cfg.
func ProvideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// MigrationsFS returns the embedded migrations rooted at their directory.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(dbfs.MigrationsFS, "migrations")
}

// OpenPostgres connects to the journal database, applying migrations first
// when autoMigrate is set.
func OpenPostgres(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig, autoMigrate bool) (*pgxpool.Pool, error) {
	if autoMigrate {
		migrations, err := MigrationsFS()
		if err != nil {
			return nil, err
		}
		m, err := db.NewMigrator(log, cfg, migrations)
		if err != nil {
			return nil, err
		}
		err = m.Up()
		m.Close()
		if err != nil {
			return nil, err
		}
	}
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return pool, nil
}

func provideJournalStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (journal.Store, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)); driver {
	case "", "memory":
		log.Info("journal uses in-memory store")
		return journal.NewMemoryStore(), nil
	case "postgres":
		pool, err := OpenPostgres(context.Background(), log, cfg.Postgres, cfg.Journal.AutoMigrate)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
		return journal.NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q (use: memory, postgres)", driver)
	}
}

func provideSweeper(log *slog.Logger, rc *boot.RuntimeConfig, cfg config.Config, store journal.Store) (*journal.Sweeper, error) {
	return journal.NewSweeper(log, store, rc.JournalRetention, cfg.Journal.SweepSchedule)
}

func startSweeper(lc fx.Lifecycle, sweeper *journal.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sweeper.Start()
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
}
