package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// maxRerankWindow bounds how many engine hits are pulled for the
// relevance-boost re-rank pass.
const maxRerankWindow = 1000

// Result is the raw outcome of executing a Query against the engine
type Result struct {
	Hits     []Hit
	Total    int64
	Facets   map[string]Facet
	MaxScore float64
	Took     time.Duration
}

// Stats describes the current index
type Stats struct {
	DocumentCount uint64    `json:"document_count"`
	LastRebuild   time.Time `json:"last_rebuild,omitempty"`
}

// Engine wraps a bleve index with the document schema for opportunity
// postings. All methods are safe for concurrent use; Rebuild swaps the
// underlying index without failing in-flight readers.
type Engine struct {
	mu      sync.RWMutex
	idx     bleve.Index
	path    string
	memOnly bool
	logger  *slog.Logger

	lastRebuild time.Time
}

// NewEngine opens or creates a persistent index at path
func NewEngine(path string, logger *slog.Logger) (*Engine, error) {
	idx, err := openOrCreateIndex(path)
	if err != nil {
		return nil, err
	}
	return &Engine{idx: idx, path: path, logger: logger}, nil
}

// NewMemEngine creates an in-memory index, used by tests
func NewMemEngine(logger *slog.Logger) (*Engine, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &Engine{idx: idx, memOnly: true, logger: logger}, nil
}

func openOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
		return idx, nil
	}
	return nil, fmt.Errorf("failed to open index: %w", err)
}

// buildIndexMapping defines the schema for opportunity documents.
// Exact-match and facet fields use the keyword analyzer; free-text
// fields use the standard analyzer.
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Store = true
		f.Analyzer = standard.Name
		return f
	}
	keywordField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Store = true
		f.Analyzer = keyword.Name
		return f
	}

	docMapping.AddFieldMappingsAt("title", textField())
	docMapping.AddFieldMappingsAt("description", textField())
	docMapping.AddFieldMappingsAt("organizerName", textField())

	searchTextField := bleve.NewTextFieldMapping()
	searchTextField.Store = false
	searchTextField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("searchText", searchTextField)

	docMapping.AddFieldMappingsAt("type", keywordField())
	docMapping.AddFieldMappingsAt("organizerType", keywordField())
	docMapping.AddFieldMappingsAt("mode", keywordField())
	docMapping.AddFieldMappingsAt("skills", keywordField())
	docMapping.AddFieldMappingsAt("tags", keywordField())
	docMapping.AddFieldMappingsAt("location", keywordField())
	docMapping.AddFieldMappingsAt("titlePrefix", keywordField())

	deadlineField := bleve.NewDateTimeFieldMapping()
	deadlineField.Store = true
	docMapping.AddFieldMappingsAt("applicationDeadline", deadlineField)

	indexedAtField := bleve.NewDateTimeFieldMapping()
	indexedAtField.Store = true
	docMapping.AddFieldMappingsAt("indexedAt", indexedAtField)

	numericField := func() *mapping.FieldMapping {
		f := bleve.NewNumericFieldMapping()
		f.Store = true
		return f
	}
	docMapping.AddFieldMappingsAt("qualityScore", numericField())
	docMapping.AddFieldMappingsAt("popularityScore", numericField())
	docMapping.AddFieldMappingsAt("relevanceBoost", numericField())

	activeField := bleve.NewBooleanFieldMapping()
	activeField.Store = true
	docMapping.AddFieldMappingsAt("isActive", activeField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("opportunity", docMapping)
	indexMapping.DefaultType = "opportunity"
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Upsert writes or overwrites a single document by id
func (e *Engine) Upsert(doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.idx.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// UpsertBulk indexes documents in one batch round trip. Items that fail
// validation are reported per item and never abort their siblings. Only
// a whole-batch engine failure is returned as an error.
func (e *Engine) UpsertBulk(docs []Document) (*BulkResult, error) {
	result := &BulkResult{}

	e.mu.RLock()
	defer e.mu.RUnlock()

	batch := e.idx.NewBatch()
	queued := 0
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			result.addFailure(doc.ID, err)
			continue
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			result.addFailure(doc.ID, err)
			continue
		}
		queued++
	}

	if queued > 0 {
		if err := e.idx.Batch(batch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
	}

	result.Indexed = queued
	return result, nil
}

// Delete removes a document from the index
func (e *Engine) Delete(id string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.idx.Delete(id); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Rebuild drops and recreates the index schema. It is idempotent and
// never fails because an index already exists; concurrent readers keep
// using the old index until the swap.
func (e *Engine) Rebuild() error {
	if e.memOnly {
		fresh, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return fmt.Errorf("failed to create fresh index: %w", err)
		}
		e.swap(fresh)
		return nil
	}

	// Materialize the fresh index in a staging directory and close it
	// before the rename, so no open handle still references the staging
	// path once the files have moved.
	staging := e.path + ".rebuild"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging index: %w", err)
	}
	fresh, err := bleve.New(staging, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create fresh index: %w", err)
	}
	if err := fresh.Close(); err != nil {
		return fmt.Errorf("failed to close staging index: %w", err)
	}

	e.mu.Lock()
	if err := os.RemoveAll(e.path); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to remove previous index files: %w", err)
	}
	if err := os.Rename(staging, e.path); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to move rebuilt index into place: %w", err)
	}
	reopened, err := bleve.Open(e.path)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to open rebuilt index: %w", err)
	}
	old := e.idx
	e.idx = reopened
	e.lastRebuild = time.Now().UTC()
	e.mu.Unlock()

	e.closeOld(old)
	return nil
}

func (e *Engine) swap(fresh bleve.Index) {
	e.mu.Lock()
	old := e.idx
	e.idx = fresh
	e.lastRebuild = time.Now().UTC()
	e.mu.Unlock()

	e.closeOld(old)
}

func (e *Engine) closeOld(old bleve.Index) {
	if old == nil {
		return
	}
	if err := old.Close(); err != nil && e.logger != nil {
		e.logger.Warn("failed to close previous index", "error", err)
	}
}

// Execute runs a Query and applies the persisted relevanceBoost to the
// engine's text score before the final sort, so the effective score is
// textRelevance x relevanceBoost.
func (e *Engine) Execute(ctx context.Context, q Query) (*Result, error) {
	started := time.Now()

	window := q.From + q.Size
	if window <= 0 {
		window = DefaultPageSize
	}
	// Oversample so the boost-adjusted order is stable across the page
	fetch := window * 3
	if fetch > maxRerankWindow {
		fetch = maxRerankWindow
	}
	if fetch < window {
		fetch = window
	}

	req := bleve.NewSearchRequestOptions(translateQuery(q), fetch, 0, false)
	req.Fields = []string{"*"}
	for name, size := range q.Facets {
		req.AddFacet(name, bleve.NewFacetRequest(facetFields[name], size))
	}

	// The read lock is held across the search itself so a concurrent
	// Rebuild cannot close the index under an in-flight reader.
	e.mu.RLock()
	defer e.mu.RUnlock()

	res, err := e.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := hitFromFields(h.ID, h.Score, h.Fields)
		hits = append(hits, hit)
	}

	sortHits(hits, q.Sort)

	// Page window after re-ranking
	if q.From >= len(hits) {
		hits = nil
	} else {
		end := q.From + q.Size
		if end > len(hits) {
			end = len(hits)
		}
		hits = hits[q.From:end]
	}

	result := &Result{
		Hits:     hits,
		Total:    int64(res.Total),
		MaxScore: res.MaxScore,
		Took:     time.Since(started),
	}

	if len(res.Facets) > 0 {
		result.Facets = make(map[string]Facet, len(res.Facets))
		for name, facet := range res.Facets {
			f := Facet{
				Field: name,
				Total: facet.Total,
			}
			for _, term := range facet.Terms.Terms() {
				value := FacetValue{
					Value: term.Term,
					Count: term.Count,
				}
				if facet.Total > 0 {
					value.Percentage = float64(term.Count) / float64(facet.Total) * 100
				}
				f.Values = append(f.Values, value)
			}
			result.Facets[name] = f
		}
	}

	return result, nil
}

// TitleCompletions returns stored titles whose lowercased form starts
// with the given prefix.
func (e *Engine) TitleCompletions(ctx context.Context, prefix string, limit int) ([]string, error) {
	pq := bleve.NewPrefixQuery(prefix)
	pq.SetField("titlePrefix")

	req := bleve.NewSearchRequestOptions(pq, limit, 0, false)
	req.Fields = []string{"title"}

	e.mu.RLock()
	defer e.mu.RUnlock()

	res, err := e.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	titles := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		if title, ok := h.Fields["title"].(string); ok && title != "" {
			titles = append(titles, title)
		}
	}
	return titles, nil
}

// GetDocument loads an indexed document's stored fields by id
func (e *Engine) GetDocument(ctx context.Context, id string) (*Document, error) {
	dq := query.NewDocIDQuery([]string{id})

	req := bleve.NewSearchRequestOptions(dq, 1, 0, false)
	req.Fields = []string{"*"}

	e.mu.RLock()
	defer e.mu.RUnlock()

	res, err := e.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if len(res.Hits) == 0 {
		return nil, ErrNotFound
	}

	fields := res.Hits[0].Fields
	doc := &Document{
		ID:            id,
		Title:         stringField(fields, "title"),
		Description:   stringField(fields, "description"),
		Type:          stringField(fields, "type"),
		OrganizerName: stringField(fields, "organizerName"),
		OrganizerType: stringField(fields, "organizerType"),
		Mode:          stringField(fields, "mode"),
		Location:      stringField(fields, "location"),
		Skills:        stringsField(fields, "skills"),
		Tags:          stringsField(fields, "tags"),
		QualityScore:  floatField(fields, "qualityScore"),
	}
	return doc, nil
}

// Stats returns document count and last rebuild time
func (e *Engine) Stats() (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count, err := e.idx.DocCount()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return Stats{DocumentCount: count, LastRebuild: e.lastRebuild}, nil
}

// Close releases the underlying index
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.Close()
}

// translateQuery maps the engine-agnostic Query onto bleve's clause tree
func translateQuery(q Query) query.Query {
	boolean := bleve.NewBooleanQuery()
	hasMust := false

	if q.Text != "" {
		fieldQueries := make([]query.Query, 0, len(q.TextFields))
		for _, wf := range q.TextFields {
			mq := bleve.NewMatchQuery(q.Text)
			mq.SetField(wf.Field)
			mq.SetBoost(wf.Weight)
			fieldQueries = append(fieldQueries, mq)
		}
		boolean.AddMust(bleve.NewDisjunctionQuery(fieldQueries...))
		hasMust = true
	}

	for _, t := range q.MustTerms {
		tq := bleve.NewTermQuery(t.Value)
		tq.SetField(t.Field)
		boolean.AddMust(tq)
		hasMust = true
	}

	if q.ActiveOnly {
		aq := bleve.NewBoolFieldQuery(true)
		aq.SetField("isActive")
		boolean.AddMust(aq)
		hasMust = true
	}

	if !q.DeadlineAfter.IsZero() {
		dq := bleve.NewDateRangeQuery(q.DeadlineAfter, time.Time{})
		dq.SetField("applicationDeadline")
		boolean.AddMust(dq)
		hasMust = true
	}

	if !hasMust {
		boolean.AddMust(bleve.NewMatchAllQuery())
	}

	for _, s := range q.Should {
		mq := bleve.NewMatchQuery(s.Text)
		mq.SetField(s.Field)
		mq.SetBoost(s.Boost)
		if s.Fuzziness > 0 {
			mq.SetFuzziness(s.Fuzziness)
		}
		boolean.AddShould(mq)
	}

	if len(q.ExcludeIDs) > 0 {
		boolean.AddMustNot(query.NewDocIDQuery(q.ExcludeIDs))
	}

	return boolean
}

// hitFromFields converts stored bleve fields into a Hit, folding the
// persisted relevanceBoost into the final score.
func hitFromFields(id string, score float64, fields map[string]interface{}) Hit {
	hit := Hit{
		ID:              id,
		Title:           stringField(fields, "title"),
		Description:     stringField(fields, "description"),
		Type:            stringField(fields, "type"),
		OrganizerName:   stringField(fields, "organizerName"),
		OrganizerType:   stringField(fields, "organizerType"),
		Skills:          stringsField(fields, "skills"),
		Mode:            stringField(fields, "mode"),
		Location:        stringField(fields, "location"),
		QualityScore:    floatField(fields, "qualityScore"),
		PopularityScore: floatField(fields, "popularityScore"),
	}

	boost := floatField(fields, "relevanceBoost")
	if boost <= 0 {
		boost = 1.0
	}
	hit.Score = score * boost

	if raw := stringField(fields, "applicationDeadline"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.Before(noDeadline) {
			deadline := t
			hit.ApplicationDeadline = &deadline
		}
	}

	return hit
}

// sortHits orders hits by the query's sort keys
func sortHits(hits []Hit, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(hits, func(i, j int) bool {
		for _, key := range keys {
			a, b := sortValue(hits[i], key.Field), sortValue(hits[j], key.Field)
			if a == b {
				continue
			}
			if key.Descending {
				return a > b
			}
			return a < b
		}
		return false
	})
}

func sortValue(h Hit, field string) float64 {
	switch field {
	case ScoreField:
		return h.Score
	case "popularityScore":
		return h.PopularityScore
	case "qualityScore":
		return h.QualityScore
	case "applicationDeadline":
		if h.ApplicationDeadline == nil {
			return float64(noDeadline.Unix())
		}
		return float64(h.ApplicationDeadline.Unix())
	default:
		return 0
	}
}

// Stored-field extraction helpers. Bleve returns single values as
// scalars and multi-valued fields as []interface{}.

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func stringsField(fields map[string]interface{}, name string) []string {
	switch v := fields[name].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func floatField(fields map[string]interface{}, name string) float64 {
	if v, ok := fields[name].(float64); ok {
		return v
	}
	return 0
}
