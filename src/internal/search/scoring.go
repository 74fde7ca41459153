package search

import (
	"time"

	"github.com/casapps/opphub/src/internal/database/models"
)

// Popularity scoring weights. popularityScore is a tertiary sort key in
// [0,100]; it never filters documents out.
const (
	qualityWeight     = 0.1
	recencyBonusWeek  = 10.0
	recencyBonusMonth = 5.0
	prizesBonus       = 5.0
	stipendBonus      = 3.0
	corporateBonus    = 2.0
)

// Relevance boost increments. relevanceBoost multiplies the engine's
// text score at query time.
const (
	baseRelevanceBoost   = 1.0
	qualityBoostHigh     = 0.3 // qualityScore > 80
	qualityBoostMid      = 0.2 // qualityScore > 60
	qualityBoostLow      = 0.1 // qualityScore > 40
	richDescriptionBoost = 0.1 // description longer than 200 chars
	manySkillsBoost      = 0.1 // more than 3 required skills
)

const (
	richDescriptionLen = 200
	manySkillsCount    = 3
)

// Personalization boosts applied as soft should-clauses
const (
	preferredTypeBoost  = 1.5
	preferredSkillBoost = 2.0
	preferredTagBoost   = 1.5
	cityMatchBoost      = 1.2
)

// PopularityScore computes the persisted popularity signal for a record,
// clamped to [0,100].
func PopularityScore(rec *models.Opportunity, now time.Time) float64 {
	score := rec.QualityScore * qualityWeight

	age := now.Sub(rec.CreatedAt)
	switch {
	case age <= 7*24*time.Hour:
		score += recencyBonusWeek
	case age <= 30*24*time.Hour:
		score += recencyBonusMonth
	}

	if rec.HasPrizes {
		score += prizesBonus
	}
	if rec.HasStipend {
		score += stipendBonus
	}
	if rec.OrganizerType == models.OrganizerCorporate {
		score += corporateBonus
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RelevanceBoost computes the persisted query-time score multiplier.
// Increments stack: a rich, high-quality posting earns all of them.
func RelevanceBoost(rec *models.Opportunity) float64 {
	boost := baseRelevanceBoost

	switch {
	case rec.QualityScore > 80:
		boost += qualityBoostHigh
	case rec.QualityScore > 60:
		boost += qualityBoostMid
	case rec.QualityScore > 40:
		boost += qualityBoostLow
	}

	if len(rec.Description) > richDescriptionLen {
		boost += richDescriptionBoost
	}
	if len(rec.Skills()) > manySkillsCount {
		boost += manySkillsBoost
	}

	return boost
}

// personalizationClauses translates user preferences into soft
// should-clauses. A document matching none of them is still returned,
// only ranked lower.
func personalizationClauses(p *Personalization) []MatchClause {
	if p == nil {
		return nil
	}

	var clauses []MatchClause
	for _, t := range p.PreferredTypes {
		if t != "" {
			clauses = append(clauses, MatchClause{Field: "type", Text: t, Boost: preferredTypeBoost})
		}
	}
	for _, s := range p.PreferredSkills {
		if s != "" {
			clauses = append(clauses, MatchClause{Field: "skills", Text: s, Boost: preferredSkillBoost})
		}
	}
	for _, tag := range p.PreferredTags {
		if tag != "" {
			clauses = append(clauses, MatchClause{Field: "tags", Text: tag, Boost: preferredTagBoost})
		}
	}
	if p.City != "" {
		clauses = append(clauses, MatchClause{Field: "location", Text: p.City, Boost: cityMatchBoost})
	}
	return clauses
}
