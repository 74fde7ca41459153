package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/database/models"
)

// popularSearchesKey is the sorted set fed by search events
const popularSearchesKey = "opphub:popular_searches"

// BehaviorService records search/view/favorite events off the critical
// path. Enqueueing never blocks; persistence failures are swallowed and
// logged. The event feed is the sole input to the offline popularity
// and personalization recomputation.
type BehaviorService struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *slog.Logger

	queue chan models.BehaviorEvent
	wg    sync.WaitGroup
	once  sync.Once
}

// NewBehaviorService creates the tracker and starts its worker. rdb may
// be nil; popular-search counters are then skipped.
func NewBehaviorService(db *gorm.DB, rdb *redis.Client, cfg *viper.Viper, logger *slog.Logger) *BehaviorService {
	queueSize := cfg.GetInt("behavior.queue_size")
	if queueSize <= 0 {
		queueSize = 1024
	}

	s := &BehaviorService{
		db:     db,
		rdb:    rdb,
		logger: logger,
		queue:  make(chan models.BehaviorEvent, queueSize),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Track enqueues an event without blocking the caller. A full queue
// drops the event with a warning rather than delaying the request.
func (s *BehaviorService) Track(event models.BehaviorEvent) {
	select {
	case s.queue <- event:
	default:
		s.logger.Warn("behavior queue full, dropping event", "action", event.Action)
	}
}

// LogSearch records a search event
func (s *BehaviorService) LogSearch(userID *uuid.UUID, sessionID, query string) {
	s.Track(models.BehaviorEvent{
		UserID:    userID,
		SessionID: sessionID,
		Action:    models.ActionSearch,
		Query:     query,
	})
}

// LogView records that a result was opened
func (s *BehaviorService) LogView(userID *uuid.UUID, sessionID string, opportunityID uuid.UUID, position int) {
	s.Track(models.BehaviorEvent{
		UserID:         userID,
		SessionID:      sessionID,
		Action:         models.ActionView,
		OpportunityID:  &opportunityID,
		ResultPosition: position,
	})
}

// LogFavorite records that a result was favorited
func (s *BehaviorService) LogFavorite(userID *uuid.UUID, sessionID string, opportunityID uuid.UUID) {
	s.Track(models.BehaviorEvent{
		UserID:        userID,
		SessionID:     sessionID,
		Action:        models.ActionFavorite,
		OpportunityID: &opportunityID,
	})
}

// GetPopularSearches returns the most frequent recent queries
func (s *BehaviorService) GetPopularSearches(ctx context.Context, limit int) ([]string, error) {
	if s.rdb == nil {
		return []string{}, nil
	}
	if limit < 1 {
		limit = 10
	}
	return s.rdb.ZRevRange(ctx, popularSearchesKey, 0, int64(limit-1)).Result()
}

// Close drains the queue and stops the worker
func (s *BehaviorService) Close() {
	s.once.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *BehaviorService) worker() {
	defer s.wg.Done()

	for event := range s.queue {
		if err := s.db.Create(&event).Error; err != nil {
			s.logger.Warn("failed to persist behavior event",
				"action", event.Action, "error", err)
		}

		if event.Action == models.ActionSearch && event.Query != "" && s.rdb != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.rdb.ZIncrBy(ctx, popularSearchesKey, 1, event.Query).Err(); err != nil {
				s.logger.Warn("failed to bump popular searches", "error", err)
			}
			cancel()
		}
	}
}
