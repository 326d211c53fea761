package ctxkeys

import (
	"context"

	"github.com/checkpoint-edu/checkpoint/internal/auth"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	ClaimsKey contextKey = "claims"
)

// Claims returns the verified token claims of the request, or nil
func Claims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims
}

func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// UserID is the external id of the authenticated user, or ""
func UserID(ctx context.Context) string {
	claims := Claims(ctx)
	if claims == nil {
		return ""
	}
	return claims.UUID
}
