package middleware

import (
	"net/http"
	"strings"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/auth"
	"github.com/checkpoint-edu/checkpoint/internal/ctxkeys"
	"github.com/checkpoint-edu/checkpoint/internal/handler"
)

type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// RequireAuth verifies the bearer token and adds its claims to the context.
// Missing or invalid tokens get a 401 envelope.
func RequireAuth(tokens TokenValidator, respond *handler.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respond.Error(w, r, apperr.Authentication("Authorization token required"))
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				respond.Error(w, r, err)
				return
			}

			ctx := ctxkeys.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
