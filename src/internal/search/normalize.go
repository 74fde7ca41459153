package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxQueryLen caps free text; longer queries are truncated, not rejected.
	MaxQueryLen = 500

	// DefaultPageSize is used when the request leaves size unset.
	DefaultPageSize = 20

	// MaxPageSize is the hard pagination cap.
	MaxPageSize = 100

	// anonymousUser folds all non-personalized requests into one cache
	// equivalence class.
	anonymousUser = "anon"
)

var validTypes = map[string]bool{
	"internship": true,
	"hackathon":  true,
	"workshop":   true,
}

var validModes = map[string]bool{
	"remote": true,
	"onsite": true,
	"hybrid": true,
}

var validOrganizerTypes = map[string]bool{
	"corporate":  true,
	"university": true,
	"community":  true,
}

// Normalized is the canonical form of a search request. Two requests
// with the same semantics always normalize identically, so their
// fingerprints match.
type Normalized struct {
	Query           string
	Skills          []string
	Type            string
	Mode            string
	OrganizerType   string
	Location        string
	Page            int
	Size            int
	User            string
	Personalization *Personalization
}

// Normalize produces the canonical form of a request. Malformed filter
// values are dropped rather than treated as fatal.
func Normalize(req Request) Normalized {
	query := strings.ToLower(strings.TrimSpace(req.Query))
	if len(query) > MaxQueryLen {
		// Back off to a rune boundary so truncation never leaves a
		// partial multi-byte sequence at the end.
		cut := MaxQueryLen
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}

	n := Normalized{
		Query:    query,
		Skills:   normalizeTerms(req.Filters.Skills),
		Location: strings.ToLower(strings.TrimSpace(req.Filters.Location)),
		Page:     req.Page,
		Size:     req.Size,
		User:     anonymousUser,
	}

	if t := strings.ToLower(strings.TrimSpace(req.Filters.Type)); validTypes[t] {
		n.Type = t
	}
	if m := strings.ToLower(strings.TrimSpace(req.Filters.Mode)); validModes[m] {
		n.Mode = m
	}
	if ot := strings.ToLower(strings.TrimSpace(req.Filters.OrganizerType)); validOrganizerTypes[ot] {
		n.OrganizerType = ot
	}

	if n.Page < 1 {
		n.Page = 1
	}
	if n.Size < 1 {
		n.Size = DefaultPageSize
	}
	if n.Size > MaxPageSize {
		n.Size = MaxPageSize
	}

	// The user id participates in the fingerprint only when the request
	// carries personalization signals, so per-user cache isolation
	// happens exactly when ranking depends on the user.
	if p := normalizePersonalization(req.Personalization); p != nil {
		n.Personalization = p
		if req.UserID != "" {
			n.User = req.UserID
		}
	}

	return n
}

// Fingerprint returns the deterministic cache key of the normalized
// request. Field order is fixed and every ranking-affecting field
// participates.
func (n Normalized) Fingerprint() string {
	h := sha256.New()

	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	writeList := func(vals []string) {
		write(strings.Join(vals, "\x01"))
	}

	write(n.Query)
	writeList(n.Skills)
	write(n.Type)
	write(n.Mode)
	write(n.OrganizerType)
	write(n.Location)
	write(strconv.Itoa(n.Page))
	write(strconv.Itoa(n.Size))
	write(n.User)

	if p := n.Personalization; p != nil {
		writeList(p.PreferredTypes)
		writeList(p.PreferredSkills)
		writeList(p.PreferredTags)
		write(p.City)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Personalized reports whether soft user boosts apply to this request
func (n Normalized) Personalized() bool {
	return n.Personalization != nil
}

// normalizeTerms lowercases, trims, dedupes and sorts a filter list so
// ordering differences never change the fingerprint.
func normalizeTerms(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func normalizePersonalization(p *Personalization) *Personalization {
	if p == nil {
		return nil
	}
	norm := &Personalization{
		PreferredTypes:  normalizeTerms(p.PreferredTypes),
		PreferredSkills: normalizeTerms(p.PreferredSkills),
		PreferredTags:   normalizeTerms(p.PreferredTags),
		City:            strings.ToLower(strings.TrimSpace(p.City)),
	}
	if len(norm.PreferredTypes) == 0 && len(norm.PreferredSkills) == 0 &&
		len(norm.PreferredTags) == 0 && norm.City == "" {
		return nil
	}
	return norm
}
