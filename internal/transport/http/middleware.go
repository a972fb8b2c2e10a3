package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"govern/internal/auth"
	pkgerrors "govern/pkg/errors"
)

type contextKeySubject struct{}

// GetSubject retrieves the authenticated operator subject from the context.
func GetSubject(ctx context.Context) string {
	subject, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok {
		return ""
	}
	return subject
}

// RequireAuth gates a route group on a valid bearer token.
func RequireAuth(tokens *auth.TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token", "path", r.URL.Path)
				writeError(w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"path", r.URL.Path,
				)
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeySubject{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
