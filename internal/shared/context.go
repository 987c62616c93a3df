package shared

import "context"

type claimContextKey struct{}

// ContextWithClaim stores the decoded session claim in context.
func ContextWithClaim(ctx context.Context, claim Claim) context.Context {
	return context.WithValue(ctx, claimContextKey{}, claim)
}

// ClaimFromContext extracts the session claim from context.
func ClaimFromContext(ctx context.Context) (Claim, bool) {
	claim, ok := ctx.Value(claimContextKey{}).(Claim)
	return claim, ok
}
