package middleware

import (
	"net/http"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/jsonapi"
)

// ContentNegotiation enforces the JSON:API media type rules: request
// bodies must be sent as application/vnd.api+json without parameters, and
// an Accept header that rules out the media type is answered with 406.
func ContentNegotiation() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBody(r) && !jsonapi.IsJSONAPIContentType(r.Header.Get("Content-Type")) {
				renderError(w, apierror.UnsupportedMediaType())
				return
			}

			if !jsonapi.AcceptsJSONAPI(r.Header.Get("Accept")) {
				renderError(w, apierror.NotAcceptable())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		return true
	}
	return false
}

func renderError(w http.ResponseWriter, apiErr *apierror.Error) {
	// Rendering an error document can only fail on a broken connection
	_ = jsonapi.Render(w, apiErr.Status, apiErr.Document())
}
