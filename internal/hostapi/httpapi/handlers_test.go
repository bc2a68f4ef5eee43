package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcherd/internal/domain"
)

func newTestRouter(api *fakeAPI) *gin.Engine {
	e := gin.New()
	h := newHandler(api)
	e.GET("/sites", h.getAllSites)
	e.GET("/sites/:identifier", h.getSite)
	e.POST("/sites", h.addSite)
	e.DELETE("/sites/:identifier", h.removeSite)
	e.PUT("/settings/history-limit", h.updateHistoryLimit)
	return e
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var r Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	return r
}

func TestGetSite(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		api := newFakeAPI()
		api.sites["example"] = &domain.Site{Identifier: "example", Name: "Example"}
		e := newTestRouter(api)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sites/example", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode(t, rec).Success)
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		api := newFakeAPI()
		e := newTestRouter(api)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sites/missing", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		r := decode(t, rec)
		assert.False(t, r.Success)
		assert.Equal(t, "NOT_FOUND", r.Error.Code)
	})
}

func TestAddSite(t *testing.T) {
	t.Run("creates a new site", func(t *testing.T) {
		api := newFakeAPI()
		e := newTestRouter(api)

		body, _ := json.Marshal(domain.Site{Identifier: "example", Name: "Example"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sites", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, api.sites, "example")
	})

	t.Run("duplicate identifier maps to 409", func(t *testing.T) {
		api := newFakeAPI()
		api.sites["example"] = &domain.Site{Identifier: "example"}
		e := newTestRouter(api)

		body, _ := json.Marshal(domain.Site{Identifier: "example"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sites", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		api := newFakeAPI()
		e := newTestRouter(api)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sites", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRemoveSite(t *testing.T) {
	api := newFakeAPI()
	api.sites["example"] = &domain.Site{Identifier: "example"}
	e := newTestRouter(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sites/example", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, api.sites, "example")
}

func TestUpdateHistoryLimit(t *testing.T) {
	t.Run("valid limit updates the api", func(t *testing.T) {
		api := newFakeAPI()
		e := newTestRouter(api)

		body, _ := json.Marshal(historyLimitRequest{Limit: 500})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/settings/history-limit", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 500, api.limit)
	})

	t.Run("missing limit is a validation error", func(t *testing.T) {
		api := newFakeAPI()
		e := newTestRouter(api)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/settings/history-limit", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
