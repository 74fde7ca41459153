package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
)

// testEnv bundles the in-memory stand-ins for every dependency of the
// service layer: sqlite database, memory-only index, memory cache.
type testEnv struct {
	db     *gorm.DB
	engine *search.Engine
	cache  *cache.Manager
	cfg    *viper.Viper
	logger *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Opportunity{},
		&models.BehaviorEvent{},
	))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := search.NewMemEngine(logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	cfg := viper.New()
	cfg.Set("cache.enabled", true)
	cfg.Set("cache.key_prefix", "test:")

	cacheManager := cache.NewManager(cfg)
	t.Cleanup(func() { cacheManager.Close() })

	return &testEnv{
		db:     db,
		engine: engine,
		cache:  cacheManager,
		cfg:    cfg,
		logger: logger,
	}
}

// seedOpportunity persists a record and indexes its document
func (env *testEnv) seedOpportunity(t *testing.T, rec *models.Opportunity) *models.Opportunity {
	t.Helper()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, env.db.Create(rec).Error)

	doc := search.MapRecord(rec, time.Now())
	require.NoError(t, env.engine.Upsert(doc))

	return rec
}

// opportunity builds an active record with sane defaults
func opportunity(title string, mutate func(*models.Opportunity)) *models.Opportunity {
	rec := &models.Opportunity{
		Title:         title,
		Type:          models.TypeInternship,
		Mode:          models.ModeRemote,
		OrganizerType: models.OrganizerCorporate,
		IsActive:      true,
	}
	if mutate != nil {
		mutate(rec)
	}
	return rec
}
