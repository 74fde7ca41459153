package services

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
)

// minPrefixLen is the shortest prefix that triggers a lookup; anything
// shorter returns an empty list without touching the index or database.
const minPrefixLen = 2

// refinementSuffixes supplement sparse completion results with
// deterministic domain refinements.
var refinementSuffixes = []string{
	"internship",
	"hackathon",
	"workshop",
	"remote",
	"online",
}

// SuggestService produces prefix completions. It is off the critical
// path: source failures degrade to partial results, never errors.
type SuggestService struct {
	db     *gorm.DB
	engine *search.Engine
	cache  *cache.Manager
	logger *slog.Logger

	timeout time.Duration
}

// NewSuggestService creates a new suggestion service
func NewSuggestService(db *gorm.DB, engine *search.Engine, cacheManager *cache.Manager, cfg *viper.Viper, logger *slog.Logger) *SuggestService {
	timeout := cfg.GetDuration("search.query_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SuggestService{
		db:      db,
		engine:  engine,
		cache:   cacheManager,
		logger:  logger,
		timeout: timeout,
	}
}

// GetSuggestions merges title completions and skill terms for a prefix,
// deduplicated and capped to limit. When the raw sources yield fewer
// than limit, heuristic refinements fill the gap, excluding ones that
// merely restate the input.
func (s *SuggestService) GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if len(prefix) < minPrefixLen {
		return []string{}, nil
	}
	if limit < 1 {
		limit = 10
	}

	key := cache.SuggestKey(prefix + ":" + strconv.Itoa(limit))
	var cached []string
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seen := make(map[string]bool)
	suggestions := make([]string, 0, limit)
	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		lower := strings.ToLower(candidate)
		if candidate == "" || seen[lower] || len(suggestions) >= limit {
			return
		}
		seen[lower] = true
		suggestions = append(suggestions, candidate)
	}

	// Title completions from the index
	titles, err := s.engine.TitleCompletions(execCtx, prefix, limit)
	if err != nil {
		s.logger.Warn("title completion lookup failed", "error", err)
	}
	for _, t := range titles {
		add(t)
	}

	// Skill terms from the canonical store
	for _, skill := range s.skillTerms(execCtx, prefix, limit) {
		add(skill)
	}

	// Deterministic refinements to fill up to limit
	for _, suffix := range refinementSuffixes {
		if len(suggestions) >= limit {
			break
		}
		if strings.Contains(prefix, suffix) {
			continue
		}
		add(prefix + " " + suffix)
	}

	if err := s.cache.SetJSON(ctx, key, suggestions, cache.TTLMedium); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}

	return suggestions, nil
}

// skillTerms extracts matching skill terms from active records
func (s *SuggestService) skillTerms(ctx context.Context, prefix string, limit int) []string {
	var rows []string
	err := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("is_active = ? AND skills_string LIKE ?", true, "%"+prefix+"%").
		Limit(50).
		Pluck("skills_string", &rows).Error
	if err != nil {
		s.logger.Warn("skill suggestion lookup failed", "error", err)
		return nil
	}

	seen := make(map[string]bool)
	var skills []string
	for _, row := range rows {
		for _, skill := range strings.Split(row, ",") {
			skill = strings.ToLower(strings.TrimSpace(skill))
			if skill == "" || seen[skill] || !strings.HasPrefix(skill, prefix) {
				continue
			}
			seen[skill] = true
			skills = append(skills, skill)
			if len(skills) >= limit {
				break
			}
		}
	}
	sort.Strings(skills)
	return skills
}
