// Package auth authenticates bearer tokens and puts the caller address in
// the request context.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// TokenVerifier resolves a bearer token to the caller address it names.
type TokenVerifier interface {
	Verify(token string) (id.Address, error)
}

// RequireCaller rejects requests without a valid bearer token.
func RequireCaller(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthenticated request - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "missing or invalid Authorization header"))
				return
			}
			caller, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated request - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}

// bearerToken reads the Authorization header, falling back to an
// access_token query parameter for websocket upgrades, which browsers cannot
// send headers on.
func bearerToken(r *http.Request) (string, bool) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		token = strings.TrimSpace(token)
		return token, token != ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}
