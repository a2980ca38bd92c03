package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/himplant/crmsync/internal/config"
)

// Migrator applies the embedded journal schema.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// NewMigrator opens a migrator. migrationsFS holds the .sql files at its
// root; pass fs.Sub(db.MigrationsFS, "migrations").
func NewMigrator(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if migrationsFS == nil {
		return nil, errors.New("migration source: no migrations provided")
	}
	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	m.Log = &migrateLogger{logger: logger}
	return &Migrator{m: m, logger: logger.With(slog.String("component", "migrate"))}, nil
}

// Close releases the source and database handles.
func (g *Migrator) Close() {
	srcErr, dbErr := g.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		g.logger.Warn("migrate close failed", slog.Any("error", err))
	}
}

// Up applies all pending migrations. No pending migration is not an error.
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	ver, dirty, _ := g.m.Version()
	g.logger.Info("migration complete", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
	return nil
}

// Down rolls back every migration.
func (g *Migrator) Down() error {
	if err := g.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	g.logger.Info("all migrations rolled back")
	return nil
}

// Version logs and returns the current schema version.
func (g *Migrator) Version() (uint, bool, error) {
	ver, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		g.logger.Info("no migration applied")
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrate version: %w", err)
	}
	g.logger.Info("current version", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
	return ver, dirty, nil
}

// Force sets the version without running migrations, clearing the dirty flag.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return fmt.Errorf("migrate force: %w", err)
	}
	g.logger.Info("forced version", slog.Int("version", version))
	return nil
}

// RunMigrate executes one CLI migrate command: "up", "down", "version" or
// "force N".
func RunMigrate(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	var forceVersion int
	switch command {
	case "up", "down", "version":
	case "force":
		if len(args) == 0 {
			return errors.New("force requires a version number argument")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		forceVersion = v
	default:
		return fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}

	g, err := NewMigrator(logger, cfg, migrationsFS)
	if err != nil {
		return err
	}
	defer g.Close()

	switch command {
	case "up":
		return g.Up()
	case "down":
		return g.Down()
	case "version":
		_, _, err := g.Version()
		return err
	default:
		return g.Force(forceVersion)
	}
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
