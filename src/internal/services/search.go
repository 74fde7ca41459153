package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
)

// SearchService owns the read path: normalize, fingerprint, cache
// read-through, build, execute. The cache is best-effort; the index
// engine is the only critical dependency.
type SearchService struct {
	db       *gorm.DB
	engine   *search.Engine
	cache    *cache.Manager
	validate *validator.Validate
	logger   *slog.Logger

	queryTimeout time.Duration
	facetSize    int
}

// NewSearchService creates a new search service
func NewSearchService(db *gorm.DB, engine *search.Engine, cacheManager *cache.Manager, cfg *viper.Viper, logger *slog.Logger) *SearchService {
	queryTimeout := cfg.GetDuration("search.query_timeout")
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	facetSize := cfg.GetInt("search.facet_size")
	if facetSize <= 0 {
		facetSize = search.DefaultFacetSize
	}

	return &SearchService{
		db:           db,
		engine:       engine,
		cache:        cacheManager,
		validate:     validator.New(),
		logger:       logger,
		queryTimeout: queryTimeout,
		facetSize:    facetSize,
	}
}

// SearchOpportunities executes a search request. Cache failures on read
// or write never fail the caller; they downgrade to direct execution
// with a warning. Index failures surface as ErrIndexUnavailable.
func (s *SearchService) SearchOpportunities(ctx context.Context, req search.Request) (*search.Response, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrValidation, err)
	}

	normalized := search.Normalize(req)
	key := cache.SearchKey(normalized.Fingerprint())

	var cached search.Response
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("cache read failed, executing search directly", "error", err)
	}

	query := search.BuildQuery(normalized, time.Now(), search.BuilderOptions{
		WithFacets: true,
		FacetSize:  s.facetSize,
	})

	execCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.engine.Execute(execCtx, query)
	if err != nil {
		return nil, err
	}

	resp := &search.Response{
		Results:    result.Hits,
		TotalCount: result.Total,
		Page:       normalized.Page,
		Size:       normalized.Size,
		Facets:     result.Facets,
		Meta: search.ScoreMetadata{
			Personalized: normalized.Personalized(),
			MaxScore:     result.MaxScore,
			TookMs:       result.Took.Milliseconds(),
		},
	}

	if err := s.cache.SetJSON(ctx, key, resp, cache.TTLShort); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}

	return resp, nil
}

// GetSimilar returns opportunities resembling the given record. The
// source record comes from the canonical store; the lookup itself runs
// as an all-soft query so no near-match is excluded.
func (s *SearchService) GetSimilar(ctx context.Context, id string, limit int) ([]search.Hit, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > search.MaxPageSize {
		limit = search.MaxPageSize
	}

	key := cache.SimilarKey(id + ":" + strconv.Itoa(limit))

	var cached []search.Hit
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	}

	var rec models.Opportunity
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, search.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load opportunity %s: %w", id, err)
	}

	now := time.Now()
	doc := search.MapRecord(&rec, now)
	query := search.BuildSimilarQuery(&doc, now, limit)

	execCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.engine.Execute(execCtx, query)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, result.Hits, cache.TTLMedium); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}

	return result.Hits, nil
}

// IndexStats exposes index document count and last rebuild time
func (s *SearchService) IndexStats() (search.Stats, error) {
	return s.engine.Stats()
}
