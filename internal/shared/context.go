package shared

import (
	"context"
	"strings"
)

type ownerContextKey struct{}

// ContextWithOwner stores the authenticated owner id in context.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, strings.TrimSpace(ownerID))
}

// OwnerFromContext extracts the owner id placed by the auth middleware.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, _ := ctx.Value(ownerContextKey{}).(string)
	return owner, owner != ""
}

// RequireOwner is OwnerFromContext returning ErrUnauthorized when absent.
func RequireOwner(ctx context.Context) (string, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return "", ErrUnauthorized
	}
	return owner, nil
}
