package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keel-api/keel/internal/atomic"
	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/query"
	"github.com/keel-api/keel/internal/schema"
	"github.com/keel-api/keel/internal/view"
	"github.com/keel-api/keel/internal/web/middleware"
)

func newTestHandler(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := schema.NewRegistry()
	registry.MustRegister(schema.NewResource("article", "articles").
		Attr("title", schema.TypeString).
		MustBuild())
	require.NoError(t, registry.ValidateAll())

	dl := datalayer.NewSQLDataLayer(db, registry, nil)
	views := view.NewViews(registry, dl, filter.NewCompiler(registry),
		query.Limits{PageSize: 25, MaxPageSize: 100, MaxIncludeDepth: 3},
		view.Options{CatchExceptions: true})

	coordinator, err := atomic.NewCoordinator(views, nil)
	require.NoError(t, err)

	return Build(views, coordinator, Options{AtomicPath: "/operations"}), mock
}

func TestHealthzBypassesContentNegotiation(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestResourceRoutesMounted(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "articles"$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT .+ FROM "articles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))

	req := httptest.NewRequest(http.MethodGet, "/article", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jsonapi.MediaType, rec.Header().Get("Content-Type"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestIDHeaderSet(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestUnknownRouteAnswersErrorDocument(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, jsonapi.MediaType, rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errObj := body["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "Not found", errObj["title"])
}

func TestMethodNotAllowedAnswersErrorDocument(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/article", nil)
	req.Header.Set("Content-Type", jsonapi.MediaType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "Method not allowed")
}

func TestAPIRoutesEnforceContentType(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/article", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestAtomicEndpointMounted(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/operations",
		strings.NewReader(`{"atomic:operations": []}`))
	req.Header.Set("Content-Type", jsonapi.MediaType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Reaches the coordinator, which rejects the empty batch
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one operation")
}

func TestAtomicEndpointDisabled(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := schema.NewRegistry()
	registry.MustRegister(schema.NewResource("article", "articles").
		Attr("title", schema.TypeString).
		MustBuild())

	dl := datalayer.NewSQLDataLayer(db, registry, nil)
	views := view.NewViews(registry, dl, filter.NewCompiler(registry),
		query.Limits{PageSize: 25, MaxPageSize: 100, MaxIncludeDepth: 3}, view.Options{})

	handler := Build(views, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/operations",
		strings.NewReader(`{"atomic:operations": []}`))
	req.Header.Set("Content-Type", jsonapi.MediaType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanicAnswers500Document(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := schema.NewRegistry()
	registry.MustRegister(schema.NewResource("article", "articles").
		Attr("title", schema.TypeString).
		MustBuild())

	dl := datalayer.NewSQLDataLayer(db, registry, nil)
	// With exception catching off, data layer failures escape as panics
	// and the recovery middleware takes over
	views := view.NewViews(registry, dl, filter.NewCompiler(registry),
		query.Limits{PageSize: 25, MaxPageSize: 100, MaxIncludeDepth: 3},
		view.Options{CatchExceptions: false})

	handler := Build(views, nil, Options{})

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "articles"$`).
		WillReturnError(assert.AnError)

	req := httptest.NewRequest(http.MethodGet, "/article", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
