package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keel-api/keel/internal/jsonapi"
)

func appendingMiddleware(trace *[]string, name string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trace = append(*trace, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string

	chain := NewChain(
		appendingMiddleware(&trace, "first"),
		appendingMiddleware(&trace, "second"),
	).Use(appendingMiddleware(&trace, "third"))

	handler := chain.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "handler")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third", "handler"}, trace)
}

func TestRequestIDGenerated(t *testing.T) {
	var captured string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, captured)
	_, err := uuid.Parse(captured)
	assert.NoError(t, err)
	assert.Equal(t, captured, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDEchoed(t *testing.T) {
	var captured string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied", captured)
	assert.Equal(t, "client-supplied", rec.Header().Get(RequestIDHeader))
}

func TestGetRequestIDEmpty(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestContentNegotiationAcceptsJSONAPI(t *testing.T) {
	called := false
	handler := ContentNegotiation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/article", strings.NewReader("{}"))
	req.Header.Set("Content-Type", jsonapi.MediaType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
}

func TestContentNegotiationRejectsWrongContentType(t *testing.T) {
	handler := ContentNegotiation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	tests := []string{
		"application/json",
		jsonapi.MediaType + "; charset=utf-8",
		"",
	}
	for _, contentType := range tests {
		t.Run("content type "+contentType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/article", strings.NewReader("{}"))
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
			assert.Equal(t, jsonapi.MediaType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), "Unsupported media type")
		})
	}
}

func TestContentNegotiationIgnoresContentTypeOnGet(t *testing.T) {
	called := false
	handler := ContentNegotiation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/article", nil)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
}

func TestContentNegotiationRejectsBadAccept(t *testing.T) {
	handler := ContentNegotiation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/article", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not acceptable")
}

func TestContentNegotiationAcceptVariants(t *testing.T) {
	handler := ContentNegotiation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		accept string
		status int
	}{
		{"", http.StatusOK},
		{"*/*", http.StatusOK},
		{jsonapi.MediaType, http.StatusOK},
		{"text/html, " + jsonapi.MediaType, http.StatusOK},
		{jsonapi.MediaType + "; ext=bulk", http.StatusNotAcceptable},
	}
	for _, tt := range tests {
		t.Run("accept "+tt.accept, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/article", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, jsonapi.MediaType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Internal server error")
	// The panic value never leaks to the client
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRecoveryPassesThrough(t *testing.T) {
	handler := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLoggingCapturesStatus(t *testing.T) {
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("body"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "body", rec.Body.String())
}

func TestResponseWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, 5, rw.bytesWritten)
	assert.True(t, rw.wroteHeader)
}

func TestResponseWriterIgnoresDuplicateWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
