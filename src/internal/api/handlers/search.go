package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
	"github.com/casapps/opphub/src/internal/services"
)

// SearchHandler exposes the search subsystem over HTTP. It only parses
// parameters and maps typed errors to status codes; all semantics live
// in the services.
type SearchHandler struct {
	searchService   *services.SearchService
	suggestService  *services.SuggestService
	indexerService  *services.IndexerService
	behaviorService *services.BehaviorService
	logger          *slog.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searchService *services.SearchService, suggestService *services.SuggestService, indexerService *services.IndexerService, behaviorService *services.BehaviorService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		searchService:   searchService,
		suggestService:  suggestService,
		indexerService:  indexerService,
		behaviorService: behaviorService,
		logger:          logger,
	}
}

// RegisterRoutes attaches all search endpoints to the given group
func (h *SearchHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/search", h.Search)
	g.POST("/search", h.SearchWithBody)
	g.GET("/search/suggestions", h.Suggestions)
	g.GET("/search/popular", h.Popular)
	g.GET("/opportunities/:id/similar", h.Similar)
	g.POST("/track", h.Track)

	g.POST("/index", h.Index)
	g.POST("/index/bulk", h.BulkIndex)
	g.DELETE("/index/:id", h.Delete)
	g.POST("/index/reindex", h.Reindex)
	g.GET("/index/stats", h.Stats)
}

// Search performs a search from query parameters
func (h *SearchHandler) Search(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))

	req := search.Request{
		Query: c.QueryParam("q"),
		Filters: search.Filters{
			Skills:        splitParam(c.QueryParam("skills")),
			Type:          c.QueryParam("type"),
			Mode:          c.QueryParam("mode"),
			OrganizerType: c.QueryParam("organizer_type"),
			Location:      c.QueryParam("location"),
		},
		Page:   page,
		Size:   size,
		UserID: c.QueryParam("user_id"),
	}

	return h.execute(c, req)
}

// SearchWithBody performs a search from a JSON request, the form used
// by personalized clients.
func (h *SearchHandler) SearchWithBody(c echo.Context) error {
	var req search.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed search request",
		})
	}
	return h.execute(c, req)
}

func (h *SearchHandler) execute(c echo.Context, req search.Request) error {
	resp, err := h.searchService.SearchOpportunities(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}

	// Record the search off the critical path
	if q := strings.TrimSpace(req.Query); q != "" {
		h.behaviorService.LogSearch(parseUserID(req.UserID), sessionID(c), q)
	}

	return c.JSON(http.StatusOK, resp)
}

// Suggestions returns prefix completions
func (h *SearchHandler) Suggestions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	suggestions, err := h.suggestService.GetSuggestions(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
	})
}

// Popular returns the most frequent recent search queries
func (h *SearchHandler) Popular(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	popular, err := h.behaviorService.GetPopularSearches(c.Request().Context(), limit)
	if err != nil {
		h.logger.Warn("popular searches lookup failed", "error", err)
		popular = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"popular": popular,
	})
}

// Similar returns opportunities resembling the given one
func (h *SearchHandler) Similar(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hits, err := h.searchService.GetSimilar(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": hits,
	})
}

// trackRequest is the JSON body of a behavior tracking call
type trackRequest struct {
	Action        string `json:"action"`
	UserID        string `json:"user_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	Query         string `json:"query,omitempty"`
	OpportunityID string `json:"opportunity_id,omitempty"`
	Position      int    `json:"position,omitempty"`
}

// Track records a behavior event; always accepted, never blocking
func (h *SearchHandler) Track(c echo.Context) error {
	var req trackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed tracking event",
		})
	}

	userID := parseUserID(req.UserID)
	session := req.SessionID
	if session == "" {
		session = sessionID(c)
	}

	switch models.BehaviorAction(req.Action) {
	case models.ActionSearch:
		h.behaviorService.LogSearch(userID, session, req.Query)
	case models.ActionView:
		if oppID, err := uuid.Parse(req.OpportunityID); err == nil {
			h.behaviorService.LogView(userID, session, oppID, req.Position)
		}
	case models.ActionFavorite:
		if oppID, err := uuid.Parse(req.OpportunityID); err == nil {
			h.behaviorService.LogFavorite(userID, session, oppID)
		}
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unknown action",
		})
	}

	return c.NoContent(http.StatusAccepted)
}

// opportunityPayload is the wire form of a canonical record. The gorm
// model keeps skills and tags in packed columns, so the JSON surface
// carries them as slices and converts on the way in.
type opportunityPayload struct {
	ID                  string                 `json:"id"`
	Title               string                 `json:"title"`
	Description         string                 `json:"description,omitempty"`
	Type                models.OpportunityType `json:"type"`
	OrganizerName       string                 `json:"organizer_name,omitempty"`
	OrganizerType       models.OrganizerType   `json:"organizer_type,omitempty"`
	Skills              []string               `json:"skills,omitempty"`
	Mode                models.Mode            `json:"mode,omitempty"`
	Location            string                 `json:"location,omitempty"`
	Tags                []string               `json:"tags,omitempty"`
	ApplicationDeadline *time.Time             `json:"application_deadline,omitempty"`
	QualityScore        float64                `json:"quality_score,omitempty"`
	HasPrizes           bool                   `json:"has_prizes,omitempty"`
	HasStipend          bool                   `json:"has_stipend,omitempty"`
	IsActive            bool                   `json:"is_active"`
	CreatedAt           time.Time              `json:"created_at,omitempty"`
}

func (p *opportunityPayload) record() (*models.Opportunity, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, err
	}
	rec := &models.Opportunity{
		ID:                  id,
		Title:               p.Title,
		Description:         p.Description,
		Type:                p.Type,
		OrganizerName:       p.OrganizerName,
		OrganizerType:       p.OrganizerType,
		Mode:                p.Mode,
		Location:            p.Location,
		ApplicationDeadline: p.ApplicationDeadline,
		QualityScore:        p.QualityScore,
		HasPrizes:           p.HasPrizes,
		HasStipend:          p.HasStipend,
		IsActive:            p.IsActive,
		CreatedAt:           p.CreatedAt,
	}
	rec.SetSkills(p.Skills)
	rec.SetTags(p.Tags)
	return rec, nil
}

// Index upserts one canonical record into the search index
func (h *SearchHandler) Index(c echo.Context) error {
	var payload opportunityPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed opportunity record",
		})
	}
	rec, err := payload.record()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid opportunity id",
		})
	}

	if err := h.indexerService.IndexOpportunity(c.Request().Context(), rec); err != nil {
		return h.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// BulkIndex upserts a batch; per-item failures come back in the body
func (h *SearchHandler) BulkIndex(c echo.Context) error {
	var payloads []opportunityPayload
	if err := c.Bind(&payloads); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed opportunity records",
		})
	}

	recs := make([]*models.Opportunity, 0, len(payloads))
	var rejected []search.BulkItemError
	for i := range payloads {
		rec, err := payloads[i].record()
		if err != nil {
			rejected = append(rejected, search.BulkItemError{
				ID:  payloads[i].ID,
				Err: "invalid opportunity id",
			})
			continue
		}
		recs = append(recs, rec)
	}

	result, err := h.indexerService.BulkIndexOpportunities(c.Request().Context(), recs)
	if err != nil {
		return h.mapError(c, err)
	}
	result.Failed = append(result.Failed, rejected...)
	return c.JSON(http.StatusOK, result)
}

// Delete removes a document from the index
func (h *SearchHandler) Delete(c echo.Context) error {
	if err := h.indexerService.DeleteFromIndex(c.Request().Context(), c.Param("id")); err != nil {
		return h.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reindex triggers a full rebuild from the canonical store
func (h *SearchHandler) Reindex(c echo.Context) error {
	if err := h.indexerService.ReindexAll(c.Request().Context()); err != nil {
		return h.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats returns index document count and last rebuild time
func (h *SearchHandler) Stats(c echo.Context) error {
	stats, err := h.searchService.IndexStats()
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// mapError translates typed service errors to HTTP responses without
// leaking internals.
func (h *SearchHandler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, search.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, search.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "opportunity not found",
		})
	case errors.Is(err, search.ErrIndexUnavailable):
		h.logger.Error("search index unavailable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "search temporarily unavailable",
		})
	default:
		h.logger.Error("search request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}
}

func splitParam(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func parseUserID(value string) *uuid.UUID {
	if value == "" {
		return nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil
	}
	return &id
}

func sessionID(c echo.Context) string {
	if sid := c.Request().Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return c.RealIP()
}
