package search

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/opphub/src/internal/database/models"
)

func TestDocumentValidate(t *testing.T) {
	err := (&Document{Title: "no id"}).Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	err = (&Document{ID: "abc", Title: "   "}).Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	assert.NoError(t, (&Document{ID: "abc", Title: "ok"}).Validate())
}

func TestMapRecord(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	deadline := now.AddDate(0, 1, 0)

	rec := &models.Opportunity{
		ID:                  uuid.New(),
		Title:               "AI Hackathon Berlin",
		Description:         "Build something",
		Type:                models.TypeHackathon,
		OrganizerName:       "Acme Corp",
		OrganizerType:       models.OrganizerCorporate,
		Mode:                models.ModeOnsite,
		Location:            " Berlin ",
		ApplicationDeadline: &deadline,
		QualityScore:        70,
		IsActive:            true,
		CreatedAt:           now.Add(-2 * 24 * time.Hour),
	}
	rec.SetSkills([]string{"Python", "PyTorch"})
	rec.SetTags([]string{"AI"})

	doc := MapRecord(rec, now)

	t.Run("IdentityAndNormalization", func(t *testing.T) {
		assert.Equal(t, rec.ID.String(), doc.ID)
		assert.Equal(t, "AI Hackathon Berlin", doc.Title)
		assert.Equal(t, "hackathon", doc.Type)
		assert.Equal(t, "berlin", doc.Location)
		assert.Equal(t, []string{"python", "pytorch"}, doc.Skills)
		assert.Equal(t, []string{"ai"}, doc.Tags)
	})

	t.Run("DerivedFields", func(t *testing.T) {
		assert.Equal(t, "ai hackathon berlin", doc.TitlePrefix)
		assert.Contains(t, doc.SearchText, "acme corp")
		assert.Contains(t, doc.SearchText, "pytorch")
		assert.Equal(t, strings.ToLower(doc.SearchText), doc.SearchText)

		assert.InDelta(t, PopularityScore(rec, now), doc.PopularityScore, 0.001)
		assert.InDelta(t, RelevanceBoost(rec), doc.RelevanceBoost, 0.001)
		assert.Equal(t, now, doc.IndexedAt)
	})

	t.Run("DeadlinePreserved", func(t *testing.T) {
		assert.Equal(t, deadline.UTC(), doc.ApplicationDeadline)
	})

	t.Run("MissingDeadlineGetsSentinel", func(t *testing.T) {
		open := *rec
		open.ApplicationDeadline = nil
		doc := MapRecord(&open, now)

		assert.Equal(t, noDeadline, doc.ApplicationDeadline)
		assert.True(t, doc.ApplicationDeadline.After(now.AddDate(100, 0, 0)))
	})
}
