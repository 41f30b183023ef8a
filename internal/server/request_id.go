package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"seolens/internal/observability/logging"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags each request with an identifier, honoring one
// supplied by a trusted proxy, and echoes it back on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
