package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/jsonapi"
)

// Recovery creates a middleware that recovers from handler panics and
// answers with a JSON:API 500 error document
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("panic recovered",
						zap.String("request_id", GetRequestID(r.Context())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Any("panic", p),
						zap.ByteString("stack", debug.Stack()),
					)

					apiErr := apierror.Internal(fmt.Errorf("panic: %v", p))
					if err := jsonapi.Render(w, apiErr.Status, apiErr.Document()); err != nil {
						// Headers are likely already sent; nothing more to do
						logger.Error("failed to render panic response", zap.Error(err))
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
