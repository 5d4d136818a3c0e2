package auth

import "context"

type claimsContextKey struct{}

// WithClaims returns a copy of ctx carrying validated token claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims stored by RequireToken
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok && claims != nil
}

// SessionIDFromContext returns the session of the authenticated request
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if claims, ok := ClaimsFromContext(ctx); ok && claims.SessionID != "" {
		return claims.SessionID, true
	}
	return "", false
}
