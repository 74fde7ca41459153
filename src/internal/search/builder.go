package search

import (
	"time"
)

// Per-field weights for the multi-field text clause. Title dominates,
// then description and organizer, then skills/tags, with the combined
// searchText field as the lowest-weighted fallback.
var defaultTextFields = []WeightedField{
	{Field: "title", Weight: 3.0},
	{Field: "description", Weight: 2.0},
	{Field: "organizerName", Weight: 2.0},
	{Field: "skills", Weight: 1.5},
	{Field: "tags", Weight: 1.5},
	{Field: "searchText", Weight: 1.0},
}

// facetFields maps facet names to their index fields
var facetFields = map[string]string{
	"skills":        "skills",
	"organizerType": "organizerType",
	"mode":          "mode",
	"type":          "type",
	"location":      "location",
}

// DefaultFacetSize caps each facet to its top buckets
const DefaultFacetSize = 20

// BuilderOptions tunes query construction
type BuilderOptions struct {
	FacetSize  int
	WithFacets bool
}

// BuildQuery assembles the engine-agnostic query for a normalized
// request. It is pure: no side effects, no execution.
func BuildQuery(n Normalized, now time.Time, opts BuilderOptions) Query {
	q := Query{
		Text:          n.Query,
		TextFields:    defaultTextFields,
		ActiveOnly:    true,
		DeadlineAfter: now.UTC(),
		From:          (n.Page - 1) * n.Size,
		Size:          n.Size,
		Sort:          defaultSort(),
	}

	// Hard exact-match filters
	for _, skill := range n.Skills {
		q.MustTerms = append(q.MustTerms, TermClause{Field: "skills", Value: skill})
	}
	if n.Type != "" {
		q.MustTerms = append(q.MustTerms, TermClause{Field: "type", Value: n.Type})
	}
	if n.Mode != "" {
		q.MustTerms = append(q.MustTerms, TermClause{Field: "mode", Value: n.Mode})
	}
	if n.OrganizerType != "" {
		q.MustTerms = append(q.MustTerms, TermClause{Field: "organizerType", Value: n.OrganizerType})
	}

	// Location is free-text-ish: fuzzy should-clause, never a hard filter
	if n.Location != "" {
		q.Should = append(q.Should, MatchClause{
			Field:     "location",
			Text:      n.Location,
			Boost:     1.0,
			Fuzziness: 1,
		})
	}

	// Soft personalization boosts; hard filters above always win
	q.Should = append(q.Should, personalizationClauses(n.Personalization)...)

	if opts.WithFacets {
		size := opts.FacetSize
		if size <= 0 {
			size = DefaultFacetSize
		}
		q.Facets = make(map[string]int, len(facetFields))
		for name := range facetFields {
			q.Facets[name] = size
		}
	}

	return q
}

// BuildSimilarQuery assembles a more-like-this query from an indexed
// document: all clauses are soft, the source document is excluded, and
// the standard active/deadline filters still apply.
func BuildSimilarQuery(doc *Document, now time.Time, limit int) Query {
	q := Query{
		ActiveOnly:    true,
		DeadlineAfter: now.UTC(),
		ExcludeIDs:    []string{doc.ID},
		Size:          limit,
		Sort:          defaultSort(),
	}

	if doc.Type != "" {
		q.Should = append(q.Should, MatchClause{Field: "type", Text: doc.Type, Boost: 1.5})
	}
	for _, skill := range doc.Skills {
		q.Should = append(q.Should, MatchClause{Field: "skills", Text: skill, Boost: 2.0})
	}
	for _, tag := range doc.Tags {
		q.Should = append(q.Should, MatchClause{Field: "tags", Text: tag, Boost: 1.5})
	}
	if doc.Title != "" {
		q.Should = append(q.Should, MatchClause{Field: "title", Text: doc.Title, Boost: 1.0})
	}

	return q
}

// defaultSort orders by (1) relevance desc, (2) popularity desc,
// (3) application deadline asc.
func defaultSort() []SortKey {
	return []SortKey{
		{Field: ScoreField, Descending: true},
		{Field: "popularityScore", Descending: true},
		{Field: "applicationDeadline", Descending: false},
	}
}
