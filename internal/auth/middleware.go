package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware verifies the bearer token and stores the caller's Identity in the request context.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			identity, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *identity)))
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", detail))
}

// WithIdentity returns a context carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the caller identity set by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.UserID
}

// ActorFromContext returns the caller as an Actor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.UserID == "" {
		return models.Actor{}, false
	}
	return identity.Actor(), true
}
