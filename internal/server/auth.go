package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"seolens/internal/api"
	"seolens/internal/auth"
	"seolens/internal/observability/logging"
	"seolens/internal/observability/metrics"
)

func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/metrics", "/api/signup", "/api/login":
		return true
	}
	return !strings.HasPrefix(path, "/api/")
}

// authMiddleware guards every /api/ route except signup and login. A missing
// credential is rejected before the wrapped handler runs; a present but
// unverifiable credential is rejected with a distinct status so clients can
// tell re-login from a malformed request.
func authMiddleware(handler *api.Handler, recorder *metrics.Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := api.ExtractToken(r)
		if token == "" {
			recorder.ObserveAuthEvent("token_missing")
			api.WriteError(w, http.StatusUnauthorized, fmt.Errorf("access denied"))
			return
		}

		identity, err := handler.Tokens.Verify(token)
		if err != nil {
			event := "token_rejected"
			if errors.Is(err, auth.ErrExpiredToken) {
				event = "token_expired"
			}
			recorder.ObserveAuthEvent(event)
			api.WriteError(w, http.StatusForbidden, fmt.Errorf("invalid token"))
			return
		}

		ctx := api.ContextWithIdentity(r.Context(), identity)
		ctx = logging.ContextWithUserID(ctx, identity.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
