package cache

import (
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired. Callers on
// the read path treat any cache error as a miss and execute directly.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache key templates
const (
	CacheKeySearch      = "search:%s"
	CacheKeyOpportunity = "opportunity:%s"
	CacheKeySuggest     = "suggest:%s"
	CacheKeySimilar     = "similar:%s"
)

// TTL classes. Search responses use TTLShort so invalidation gaps stay
// narrow; per-record payloads and suggestions live longer.
const (
	TTLShort  = 60 * time.Second
	TTLMedium = 300 * time.Second
	TTLLong   = 3600 * time.Second
	TTLStatic = 86400 * time.Second
)

// SearchKey returns the cache key for a search fingerprint
func SearchKey(fingerprint string) string {
	return fmt.Sprintf(CacheKeySearch, fingerprint)
}

// OpportunityKey returns the cache key for a single record
func OpportunityKey(id string) string {
	return fmt.Sprintf(CacheKeyOpportunity, id)
}

// SuggestKey returns the cache key for a suggestion prefix
func SuggestKey(prefix string) string {
	return fmt.Sprintf(CacheKeySuggest, prefix)
}

// SimilarKey returns the cache key for a similar-opportunities lookup
func SimilarKey(id string) string {
	return fmt.Sprintf(CacheKeySimilar, id)
}
