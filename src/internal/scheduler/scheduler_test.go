package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
	"github.com/casapps/opphub/src/internal/services"
)

func setupSchedulerTest(t *testing.T) (*Scheduler, *gorm.DB, *search.Engine) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Opportunity{}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := search.NewMemEngine(logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	cfg := viper.New()
	cfg.Set("scheduler.expired_sweep", "0 * * * *")
	cfg.Set("scheduler.full_reindex", "30 3 * * *")

	indexer := services.NewIndexerService(db, engine, cache.NewManager(cfg), nil, cfg, logger)

	return New(db, indexer, cfg, logger), db, engine
}

func TestStartStop(t *testing.T) {
	s, _, _ := setupSchedulerTest(t)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestStartRejectsBadSpec(t *testing.T) {
	s, _, _ := setupSchedulerTest(t)
	s.sweepSpec = "not a cron spec"

	assert.Error(t, s.Start(context.Background()))
}

func TestExpiredSweep(t *testing.T) {
	s, db, engine := setupSchedulerTest(t)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(30 * 24 * time.Hour)

	expired := &models.Opportunity{
		Title:               "Yesterday Hackathon",
		Type:                models.TypeHackathon,
		IsActive:            true,
		ApplicationDeadline: &past,
	}
	open := &models.Opportunity{
		Title:               "Upcoming Hackathon",
		Type:                models.TypeHackathon,
		IsActive:            true,
		ApplicationDeadline: &future,
	}
	noDeadline := &models.Opportunity{
		Title:    "Evergreen Workshop",
		Type:     models.TypeWorkshop,
		IsActive: true,
	}
	require.NoError(t, db.Create(expired).Error)
	require.NoError(t, db.Create(open).Error)
	require.NoError(t, db.Create(noDeadline).Error)

	s.runExpiredSweep(ctx)

	t.Run("ExpiredRecordDeactivated", func(t *testing.T) {
		var rec models.Opportunity
		require.NoError(t, db.First(&rec, "id = ?", expired.ID).Error)
		assert.False(t, rec.IsActive)
	})

	t.Run("OthersUntouched", func(t *testing.T) {
		var rec models.Opportunity
		require.NoError(t, db.First(&rec, "id = ?", open.ID).Error)
		assert.True(t, rec.IsActive)

		var rec2 models.Opportunity
		require.NoError(t, db.First(&rec2, "id = ?", noDeadline.ID).Error)
		assert.True(t, rec2.IsActive)
	})

	t.Run("IndexFlagUpdated", func(t *testing.T) {
		// The sweep re-upserts the deactivated records, so the active
		// filter now hides them.
		q := search.BuildQuery(search.Normalize(search.Request{}), time.Now(), search.BuilderOptions{})
		result, err := engine.Execute(ctx, q)
		require.NoError(t, err)

		for _, hit := range result.Hits {
			assert.NotEqual(t, expired.ID.String(), hit.ID)
		}
	})

	t.Run("SweepIsIdempotent", func(t *testing.T) {
		s.runExpiredSweep(ctx)

		var count int64
		require.NoError(t, db.Model(&models.Opportunity{}).Where("is_active = ?", true).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})
}
