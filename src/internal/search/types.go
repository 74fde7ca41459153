package search

import (
	"time"
)

// Filters narrows a search to exact-match field values. Unknown or
// malformed values are dropped during normalization, never rejected.
type Filters struct {
	Skills        []string `json:"skills,omitempty"`
	Type          string   `json:"type,omitempty"`
	Mode          string   `json:"mode,omitempty"`
	OrganizerType string   `json:"organizer_type,omitempty"`
	Location      string   `json:"location,omitempty"`
}

// Personalization carries the per-user signals that feed soft ranking
// boosts. A non-matching preference never excludes a document.
type Personalization struct {
	PreferredTypes  []string `json:"preferred_types,omitempty"`
	PreferredSkills []string `json:"preferred_skills,omitempty"`
	PreferredTags   []string `json:"preferred_tags,omitempty"`
	City            string   `json:"city,omitempty"`
}

// Request is an immutable search request as delivered by the HTTP layer.
type Request struct {
	Query           string           `json:"query" validate:"omitempty"`
	Filters         Filters          `json:"filters"`
	Page            int              `json:"page" validate:"gte=0"`
	Size            int              `json:"size" validate:"gte=0"`
	UserID          string           `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Personalization *Personalization `json:"personalization,omitempty"`
}

// Hit is a single ranked search result
type Hit struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Type                string     `json:"type"`
	OrganizerName       string     `json:"organizer_name,omitempty"`
	OrganizerType       string     `json:"organizer_type,omitempty"`
	Skills              []string   `json:"skills,omitempty"`
	Mode                string     `json:"mode,omitempty"`
	Location            string     `json:"location,omitempty"`
	ApplicationDeadline *time.Time `json:"application_deadline,omitempty"`
	QualityScore        float64    `json:"quality_score"`
	PopularityScore     float64    `json:"popularity_score"`
	Score               float64    `json:"score"`
}

// FacetValue is one bucket of a facet aggregation
type FacetValue struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Facet aggregates document counts per distinct field value
type Facet struct {
	Field  string       `json:"field"`
	Total  int          `json:"total"`
	Values []FacetValue `json:"values"`
}

// ScoreMetadata describes how the response was ranked
type ScoreMetadata struct {
	Personalized bool    `json:"personalized"`
	MaxScore     float64 `json:"max_score"`
	TookMs       int64   `json:"took_ms"`
}

// Response is the full search response, cached as an opaque blob keyed
// by the request fingerprint.
type Response struct {
	Results     []Hit            `json:"results"`
	TotalCount  int64            `json:"total_count"`
	Page        int              `json:"page"`
	Size        int              `json:"size"`
	Facets      map[string]Facet `json:"facets,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Meta        ScoreMetadata    `json:"meta"`
}

// WeightedField pairs a text field with its relative match weight
type WeightedField struct {
	Field  string
	Weight float64
}

// TermClause is a hard exact-match filter
type TermClause struct {
	Field string
	Value string
}

// MatchClause is a soft scoring clause; it boosts matching documents
// but never excludes non-matching ones.
type MatchClause struct {
	Field     string
	Text      string
	Boost     float64
	Fuzziness int
}

// SortKey orders results by a field; ScoreField sorts by text relevance
type SortKey struct {
	Field      string
	Descending bool
}

// ScoreField is the pseudo-field that sorts by computed relevance
const ScoreField = "_score"

// Query is the engine-agnostic query object produced by the builder.
// It is pure data; only the engine knows how to execute it.
type Query struct {
	Text          string
	TextFields    []WeightedField
	MustTerms     []TermClause
	ActiveOnly    bool
	DeadlineAfter time.Time
	Should        []MatchClause
	ExcludeIDs    []string
	Sort          []SortKey
	From          int
	Size          int
	Facets        map[string]int
}
