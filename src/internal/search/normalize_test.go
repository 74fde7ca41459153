package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		n := Normalize(Request{Query: "  Machine Learning  "})

		assert.Equal(t, "machine learning", n.Query)
		assert.Equal(t, 1, n.Page)
		assert.Equal(t, DefaultPageSize, n.Size)
		assert.Equal(t, "anon", n.User)
		assert.Nil(t, n.Personalization)
	})

	t.Run("TruncatesLongQueries", func(t *testing.T) {
		n := Normalize(Request{Query: strings.Repeat("a", MaxQueryLen+100)})
		assert.Len(t, n.Query, MaxQueryLen)
	})

	t.Run("TruncatesOnRuneBoundary", func(t *testing.T) {
		// "é" is two bytes, so the byte cap lands mid-rune for odd
		// offsets somewhere in the repeated sequence.
		n := Normalize(Request{Query: "a" + strings.Repeat("é", MaxQueryLen)})
		assert.True(t, utf8.ValidString(n.Query))
		assert.LessOrEqual(t, len(n.Query), MaxQueryLen)
		assert.True(t, strings.HasSuffix(n.Query, "é"))
	})

	t.Run("ClampsPageSize", func(t *testing.T) {
		n := Normalize(Request{Size: MaxPageSize + 50})
		assert.Equal(t, MaxPageSize, n.Size)

		n = Normalize(Request{Page: -3, Size: -1})
		assert.Equal(t, 1, n.Page)
		assert.Equal(t, DefaultPageSize, n.Size)
	})

	t.Run("DropsMalformedFilterValues", func(t *testing.T) {
		n := Normalize(Request{Filters: Filters{
			Type:          "conference",
			Mode:          "in-person",
			OrganizerType: "government",
		}})

		assert.Empty(t, n.Type)
		assert.Empty(t, n.Mode)
		assert.Empty(t, n.OrganizerType)
	})

	t.Run("KeepsValidFilterValues", func(t *testing.T) {
		n := Normalize(Request{Filters: Filters{
			Type:          " Hackathon ",
			Mode:          "REMOTE",
			OrganizerType: "corporate",
		}})

		assert.Equal(t, "hackathon", n.Type)
		assert.Equal(t, "remote", n.Mode)
		assert.Equal(t, "corporate", n.OrganizerType)
	})

	t.Run("DedupesAndSortsSkills", func(t *testing.T) {
		n := Normalize(Request{Filters: Filters{
			Skills: []string{"Python", "go", " python ", "", "Go"},
		}})

		assert.Equal(t, []string{"go", "python"}, n.Skills)
	})

	t.Run("UserOnlyWithPersonalization", func(t *testing.T) {
		userID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

		n := Normalize(Request{Query: "ai", UserID: userID})
		assert.Equal(t, "anon", n.User)
		assert.False(t, n.Personalized())

		n = Normalize(Request{
			Query:           "ai",
			UserID:          userID,
			Personalization: &Personalization{PreferredSkills: []string{"python"}},
		})
		assert.Equal(t, userID, n.User)
		assert.True(t, n.Personalized())
	})

	t.Run("EmptyPersonalizationIsNone", func(t *testing.T) {
		n := Normalize(Request{
			Personalization: &Personalization{
				PreferredSkills: []string{" ", ""},
				City:            "  ",
			},
		})
		assert.Nil(t, n.Personalization)
	})
}

func TestFingerprint(t *testing.T) {
	base := Request{
		Query: "AI Hackathon",
		Filters: Filters{
			Skills: []string{"python", "go"},
			Type:   "hackathon",
		},
		Page: 2,
		Size: 20,
	}

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, Normalize(base).Fingerprint(), Normalize(base).Fingerprint())
	})

	t.Run("SkillOrderIrrelevant", func(t *testing.T) {
		reordered := base
		reordered.Filters.Skills = []string{"go", "python"}
		assert.Equal(t, Normalize(base).Fingerprint(), Normalize(reordered).Fingerprint())
	})

	t.Run("CaseAndWhitespaceIrrelevant", func(t *testing.T) {
		shouted := base
		shouted.Query = "  ai hackathon "
		assert.Equal(t, Normalize(base).Fingerprint(), Normalize(shouted).Fingerprint())
	})

	t.Run("SensitiveToEveryRankingField", func(t *testing.T) {
		fingerprints := map[string]string{}
		add := func(name string, req Request) {
			fingerprints[name] = Normalize(req).Fingerprint()
		}

		add("base", base)

		changed := base
		changed.Query = "ml hackathon"
		add("query", changed)

		changed = base
		changed.Filters.Skills = []string{"python"}
		add("skills", changed)

		changed = base
		changed.Filters.Mode = "remote"
		add("mode", changed)

		changed = base
		changed.Page = 3
		add("page", changed)

		changed = base
		changed.Size = 50
		add("size", changed)

		changed = base
		changed.Personalization = &Personalization{City: "berlin"}
		add("personalization", changed)

		seen := map[string]string{}
		for name, fp := range fingerprints {
			if prev, ok := seen[fp]; ok {
				t.Fatalf("fingerprint collision between %q and %q", prev, name)
			}
			seen[fp] = name
		}
	})

	t.Run("UserIgnoredWithoutPersonalization", func(t *testing.T) {
		withUser := base
		withUser.UserID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
		assert.Equal(t, Normalize(base).Fingerprint(), Normalize(withUser).Fingerprint())
	})

	t.Run("UserSeparatesPersonalizedRequests", func(t *testing.T) {
		p := &Personalization{PreferredSkills: []string{"rust"}}

		a := base
		a.UserID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
		a.Personalization = p

		b := base
		b.UserID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
		b.Personalization = p

		assert.NotEqual(t, Normalize(a).Fingerprint(), Normalize(b).Fingerprint())
	})
}
