// Package scheduler wires up the cron jobs that keep the search index
// lean: an hourly sweep deactivating postings whose deadline passed and
// a nightly full reindex.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/services"
)

// Scheduler wraps robfig/cron and manages index maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	db      *gorm.DB
	indexer *services.IndexerService
	logger  *slog.Logger

	sweepSpec   string
	reindexSpec string
}

// New creates a Scheduler with specs from configuration.
func New(db *gorm.DB, indexer *services.IndexerService, cfg *viper.Viper, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		db:          db,
		indexer:     indexer,
		logger:      logger,
		sweepSpec:   cfg.GetString("scheduler.expired_sweep"),
		reindexSpec: cfg.GetString("scheduler.full_reindex"),
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.sweepSpec, func() {
		s.runExpiredSweep(ctx)
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.reindexSpec, func() {
		if err := s.indexer.ReindexAll(ctx); err != nil {
			s.logger.Error("scheduled reindex failed", "error", err)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "sweep", s.sweepSpec, "reindex", s.reindexSpec)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// runExpiredSweep deactivates records whose application deadline has
// passed and re-upserts their documents so the inactive flag reaches
// the index. The hard deadline filter already hides them from results;
// the sweep keeps the canonical store and index in agreement.
func (s *Scheduler) runExpiredSweep(ctx context.Context) {
	now := time.Now().UTC()

	var expired []*models.Opportunity
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND application_deadline IS NOT NULL AND application_deadline < ?", true, now).
		Find(&expired).Error
	if err != nil {
		s.logger.Error("expired sweep query failed", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	ids := make([]string, 0, len(expired))
	for _, rec := range expired {
		rec.IsActive = false
		ids = append(ids, rec.ID.String())
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("id IN ?", ids).
		Update("is_active", false).Error; err != nil {
		s.logger.Error("expired sweep update failed", "error", err)
		return
	}

	result, err := s.indexer.BulkIndexOpportunities(ctx, expired)
	if err != nil {
		s.logger.Error("expired sweep reindex failed", "error", err)
		return
	}

	s.logger.Info("expired sweep complete",
		"deactivated", len(expired), "index_failures", len(result.Failed))
}
