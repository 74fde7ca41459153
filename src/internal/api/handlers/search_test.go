package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/database/models"
	"github.com/casapps/opphub/src/internal/search"
	"github.com/casapps/opphub/src/internal/services"
)

type handlerTestEnv struct {
	echo     *echo.Echo
	db       *gorm.DB
	engine   *search.Engine
	behavior *services.BehaviorService
}

func setupHandlerTest(t *testing.T) *handlerTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Opportunity{}, &models.BehaviorEvent{}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := search.NewMemEngine(logger)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	cfg := viper.New()
	cacheManager := cache.NewManager(cfg)

	searchService := services.NewSearchService(db, engine, cacheManager, cfg, logger)
	suggestService := services.NewSuggestService(db, engine, cacheManager, cfg, logger)
	indexerService := services.NewIndexerService(db, engine, cacheManager, nil, cfg, logger)
	behaviorService := services.NewBehaviorService(db, nil, cfg, logger)
	t.Cleanup(behaviorService.Close)

	e := echo.New()
	h := NewSearchHandler(searchService, suggestService, indexerService, behaviorService, logger)
	h.RegisterRoutes(e.Group("/api/v1"))

	return &handlerTestEnv{echo: e, db: db, engine: engine, behavior: behaviorService}
}

func (env *handlerTestEnv) seed(t *testing.T, rec *models.Opportunity) *models.Opportunity {
	t.Helper()
	require.NoError(t, env.db.Create(rec).Error)
	require.NoError(t, env.engine.Upsert(search.MapRecord(rec, time.Now())))
	return rec
}

func (env *handlerTestEnv) request(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	env.seed(t, &models.Opportunity{
		Title:    "Go Backend Internship",
		Type:     models.TypeInternship,
		Mode:     models.ModeRemote,
		IsActive: true,
	})

	t.Run("GetWithQueryParams", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/api/v1/search?q=backend&type=internship", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp search.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Go Backend Internship", resp.Results[0].Title)
	})

	t.Run("PostWithPersonalization", func(t *testing.T) {
		body := `{
			"query": "backend",
			"user_id": "` + uuid.NewString() + `",
			"personalization": {"preferred_skills": ["go"]}
		}`
		rec := env.request(http.MethodPost, "/api/v1/search", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp search.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Meta.Personalized)
	})

	t.Run("InvalidUserIDIsBadRequest", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/api/v1/search?user_id=banana", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MalformedBodyIsBadRequest", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/api/v1/search", "{broken")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSuggestionsEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	env.seed(t, &models.Opportunity{
		Title:    "Machine Learning Bootcamp",
		Type:     models.TypeWorkshop,
		IsActive: true,
	})

	rec := env.request(http.MethodGet, "/api/v1/search/suggestions?q=machine&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Suggestions, "Machine Learning Bootcamp")
}

func TestSimilarEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	source := env.seed(t, &models.Opportunity{
		Title:        "Go Internship",
		Type:         models.TypeInternship,
		SkillsString: "go",
		IsActive:     true,
	})
	env.seed(t, &models.Opportunity{
		Title:        "Go Workshop",
		Type:         models.TypeWorkshop,
		SkillsString: "go",
		IsActive:     true,
	})

	t.Run("ReturnsNeighbours", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/api/v1/opportunities/"+source.ID.String()+"/similar", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Results []search.Hit `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, "Go Workshop", resp.Results[0].Title)
	})

	t.Run("UnknownRecordIsNotFound", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/api/v1/opportunities/"+uuid.NewString()+"/similar", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTrackEndpoint(t *testing.T) {
	env := setupHandlerTest(t)

	t.Run("SearchEventAccepted", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/api/v1/track", `{"action":"search","query":"go"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("ViewEventAccepted", func(t *testing.T) {
		body := `{"action":"view","opportunity_id":"` + uuid.NewString() + `","position":2}`
		rec := env.request(http.MethodPost, "/api/v1/track", body)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("UnknownActionRejected", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/api/v1/track", `{"action":"hover"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIndexEndpoints(t *testing.T) {
	env := setupHandlerTest(t)

	t.Run("IndexThenDelete", func(t *testing.T) {
		id := uuid.NewString()
		body := `{"id":"` + id + `","title":"Indexed Via API","type":"hackathon","is_active":true}`

		rec := env.request(http.MethodPost, "/api/v1/index", body)
		require.Equal(t, http.StatusNoContent, rec.Code)

		stats, err := env.engine.Stats()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), stats.DocumentCount)

		rec = env.request(http.MethodDelete, "/api/v1/index/"+id, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("PostedSkillsAreSearchable", func(t *testing.T) {
		body := `{
			"id": "` + uuid.NewString() + `",
			"title": "Compiler Internship",
			"type": "internship",
			"skills": ["go", "llvm"],
			"tags": ["systems"],
			"is_active": true
		}`
		rec := env.request(http.MethodPost, "/api/v1/index", body)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.request(http.MethodGet, "/api/v1/search?skills=llvm", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp search.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Compiler Internship", resp.Results[0].Title)
		assert.Contains(t, resp.Results[0].Skills, "go")
	})

	t.Run("MalformedIDIsBadRequest", func(t *testing.T) {
		body := `{"id":"not-a-uuid","title":"Broken","type":"workshop","is_active":true}`
		rec := env.request(http.MethodPost, "/api/v1/index", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("BulkReportsPartialFailures", func(t *testing.T) {
		body := `[
			{"id":"` + uuid.NewString() + `","title":"Valid","type":"workshop","is_active":true},
			{"id":"` + uuid.NewString() + `","title":"","type":"workshop","is_active":true},
			{"id":"nope","title":"Bad ID","type":"workshop","is_active":true}
		]`
		rec := env.request(http.MethodPost, "/api/v1/index/bulk", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var result search.BulkResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 1, result.Indexed)
		assert.Len(t, result.Failed, 2)
	})

	t.Run("Stats", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/api/v1/index/stats", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Reindex", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/api/v1/index/reindex", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
