package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/himplant/crmsync/internal/config"
	"github.com/himplant/crmsync/internal/journal"
	"github.com/himplant/crmsync/internal/logger"
)

func TestGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		InfrastructureModule,
		DomainModule,
		ServerModule,
		fx.NopLogger,
	)
	require.NoError(t, err)
}

func TestMigrationsFS(t *testing.T) {
	migrations, err := MigrationsFS()
	require.NoError(t, err)
	_, err = migrations.Open("0001_sync_journal.up.sql")
	require.NoError(t, err)
}

func TestProvideJournalStore(t *testing.T) {
	lc := fxtest.NewLifecycle(t)

	cfg := config.Default()
	store, err := provideJournalStore(lc, logger.Discard(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &journal.MemoryStore{}, store)

	cfg.Journal.Driver = "redis"
	_, err = provideJournalStore(lc, logger.Discard(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown journal driver")
}
