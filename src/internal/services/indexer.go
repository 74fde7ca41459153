package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
)

// ChangeEvent is a canonical-store change notification delivered over
// the change feed.
type ChangeEvent struct {
	Action string `json:"action"` // "create", "update", "delete"
	ID     string `json:"id"`
}

// IndexerService keeps index documents consistent with canonical
// records: at-least-once application, last-writer-wins, with the
// canonical store staying authoritative. Every write invalidates the
// affected cache keys.
type IndexerService struct {
	db      *gorm.DB
	engine  *search.Engine
	cache   *cache.Manager
	rdb     *redis.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	channel  string
	pageSize int
}

// NewIndexerService creates a new indexer service. rdb may be nil when
// no change feed is configured; synchronization then happens through
// the exposed index operations and scheduled reindexes only.
func NewIndexerService(db *gorm.DB, engine *search.Engine, cacheManager *cache.Manager, rdb *redis.Client, cfg *viper.Viper, logger *slog.Logger) *IndexerService {
	rateLimit := cfg.GetInt("indexer.bulk_rate_limit")
	if rateLimit <= 0 {
		rateLimit = 10
	}
	burst := cfg.GetInt("indexer.bulk_burst")
	if burst <= 0 {
		burst = 5
	}
	pageSize := cfg.GetInt("search.reindex_page_size")
	if pageSize <= 0 {
		pageSize = 500
	}

	return &IndexerService{
		db:       db,
		engine:   engine,
		cache:    cacheManager,
		rdb:      rdb,
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), burst),
		logger:   logger,
		channel:  cfg.GetString("redis.changes_channel"),
		pageSize: pageSize,
	}
}

// IndexOpportunity computes derived fields and upserts one document
func (s *IndexerService) IndexOpportunity(ctx context.Context, rec *models.Opportunity) error {
	doc := search.MapRecord(rec, time.Now())
	if err := s.engine.Upsert(doc); err != nil {
		return err
	}
	s.invalidateRecord(ctx, doc.ID)
	return nil
}

// BulkIndexOpportunities batches writes in one round trip. Per-item
// failures are reported in the result; a failing item never aborts its
// siblings. Batches are rate limited so continuous ingestion cannot
// starve the read path.
func (s *IndexerService) BulkIndexOpportunities(ctx context.Context, recs []*models.Opportunity) (*search.BulkResult, error) {
	if len(recs) == 0 {
		return &search.BulkResult{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bulk index cancelled: %w", err)
	}

	now := time.Now()
	docs := make([]search.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, search.MapRecord(rec, now))
	}

	result, err := s.engine.UpsertBulk(docs)
	if err != nil {
		return nil, err
	}

	s.invalidateSearches(ctx)
	return result, nil
}

// DeleteFromIndex removes a document by record id
func (s *IndexerService) DeleteFromIndex(ctx context.Context, id string) error {
	if err := s.engine.Delete(id); err != nil {
		return err
	}
	s.invalidateRecord(ctx, id)
	return nil
}

// ReindexAll rebuilds the schema and repopulates the index from the
// canonical store in pages. Used for migrations; idempotent.
func (s *IndexerService) ReindexAll(ctx context.Context) error {
	if err := s.engine.Rebuild(); err != nil {
		return err
	}

	var offset int
	for {
		var recs []*models.Opportunity
		err := s.db.WithContext(ctx).
			Order("created_at").
			Limit(s.pageSize).
			Offset(offset).
			Find(&recs).Error
		if err != nil {
			return fmt.Errorf("failed to load records for reindex: %w", err)
		}
		if len(recs) == 0 {
			break
		}

		result, err := s.BulkIndexOpportunities(ctx, recs)
		if err != nil {
			return err
		}
		if result.HasFailures() {
			s.logger.Warn("reindex page had failures",
				"offset", offset, "failed", len(result.Failed))
		}

		offset += len(recs)
	}

	s.invalidateSearches(ctx)
	s.logger.Info("full reindex complete", "documents", offset)
	return nil
}

// Run subscribes to canonical-store change notifications and applies
// them until ctx is cancelled. Feed errors are logged, never fatal.
func (s *IndexerService) Run(ctx context.Context) {
	if s.rdb == nil || s.channel == "" {
		return
	}

	sub := s.rdb.Subscribe(ctx, s.channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.handleChange(ctx, msg.Payload)
			}
		}
	}()
}

func (s *IndexerService) handleChange(ctx context.Context, payload string) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("malformed change notification", "error", err)
		return
	}

	switch event.Action {
	case "create", "update":
		var rec models.Opportunity
		if err := s.db.WithContext(ctx).First(&rec, "id = ?", event.ID).Error; err != nil {
			s.logger.Warn("change feed record lookup failed", "id", event.ID, "error", err)
			return
		}
		if err := s.IndexOpportunity(ctx, &rec); err != nil {
			s.logger.Warn("change feed upsert failed", "id", event.ID, "error", err)
		}
	case "delete":
		if err := s.DeleteFromIndex(ctx, event.ID); err != nil {
			s.logger.Warn("change feed delete failed", "id", event.ID, "error", err)
		}
	default:
		s.logger.Warn("unknown change action", "action", event.Action)
	}
}

// invalidateRecord flushes the record key plus every derived result set
// that could contain it. Coarse but correctness-safe; residual
// staleness is bounded by TTL.
func (s *IndexerService) invalidateRecord(ctx context.Context, id string) {
	s.cache.Delete(ctx, cache.OpportunityKey(id))
	s.invalidateSearches(ctx)
}

func (s *IndexerService) invalidateSearches(ctx context.Context) {
	s.cache.DeletePattern(ctx, "search:*")
	s.cache.DeletePattern(ctx, "similar:*")
}
