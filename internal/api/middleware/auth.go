package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docqa/internal/api"
)

type contextKey string

const OwnerIDKey contextKey = "owner_id"

// AuthValidator resolves a bearer token to the owner it belongs to.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			ownerID, err := validator.ValidateAPIKey(r.Context(), strings.TrimSpace(token))
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			setOwner(r.Context(), ownerID)
			ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerID returns the authenticated owner, or "" outside APIKeyAuth.
func GetOwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(OwnerIDKey).(string)
	return ownerID
}
