package search

import (
	"strings"
	"time"

	"github.com/casapps/opphub/src/internal/database/models"
)

// noDeadline stands in for postings without an application deadline so
// the always-applied "deadline has not passed" filter keeps them
// visible. It stays below the year-2262 ceiling of nanosecond unix
// timestamps, which is how the index stores datetimes.
var noDeadline = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)

// Document is the denormalized, search-optimized projection of an
// Opportunity record. Its ID always equals the record ID; it is
// eventually consistent with the canonical store.
type Document struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Type                string    `json:"type"`
	OrganizerName       string    `json:"organizerName"`
	OrganizerType       string    `json:"organizerType"`
	Skills              []string  `json:"skills"`
	Mode                string    `json:"mode"`
	Location            string    `json:"location"`
	Tags                []string  `json:"tags"`
	ApplicationDeadline time.Time `json:"applicationDeadline"`
	QualityScore        float64   `json:"qualityScore"`
	IsActive            bool      `json:"isActive"`

	// Derived fields
	SearchText      string    `json:"searchText"`
	TitlePrefix     string    `json:"titlePrefix"`
	PopularityScore float64   `json:"popularityScore"`
	RelevanceBoost  float64   `json:"relevanceBoost"`
	IndexedAt       time.Time `json:"indexedAt"`
}

// Validate reports whether the document can be indexed
func (d *Document) Validate() error {
	if d.ID == "" {
		return validationError("document id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return validationError("document %s has no title", d.ID)
	}
	return nil
}

// MapRecord projects a canonical record onto an index document,
// computing the derived search text and ranking signals.
func MapRecord(rec *models.Opportunity, now time.Time) Document {
	skills := lowerAll(rec.Skills())
	tags := lowerAll(rec.Tags())

	deadline := noDeadline
	if rec.ApplicationDeadline != nil {
		deadline = rec.ApplicationDeadline.UTC()
	}

	doc := Document{
		ID:                  rec.ID.String(),
		Title:               rec.Title,
		Description:         rec.Description,
		Type:                strings.ToLower(string(rec.Type)),
		OrganizerName:       rec.OrganizerName,
		OrganizerType:       strings.ToLower(string(rec.OrganizerType)),
		Skills:              skills,
		Mode:                strings.ToLower(string(rec.Mode)),
		Location:            strings.ToLower(strings.TrimSpace(rec.Location)),
		Tags:                tags,
		ApplicationDeadline: deadline,
		QualityScore:        rec.QualityScore,
		IsActive:            rec.IsActive,
		PopularityScore:     PopularityScore(rec, now),
		RelevanceBoost:      RelevanceBoost(rec),
		IndexedAt:           now.UTC(),
	}

	doc.SearchText = buildSearchText(rec, skills, tags)
	doc.TitlePrefix = strings.ToLower(strings.TrimSpace(rec.Title))

	return doc
}

// buildSearchText concatenates every searchable field into the combined
// fallback field used by the lowest-weighted text clause.
func buildSearchText(rec *models.Opportunity, skills, tags []string) string {
	var b strings.Builder
	for _, part := range []string{
		rec.Title,
		rec.Description,
		rec.OrganizerName,
		strings.Join(skills, " "),
		strings.Join(tags, " "),
		rec.Location,
		string(rec.Type),
		string(rec.Mode),
	} {
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return strings.ToLower(b.String())
}

func lowerAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
