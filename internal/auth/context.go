// ABOUTME: Request-context plumbing for verified identities
// ABOUTME: WithIdentity/FromContext pair shared by HTTP middleware and the socket handler

package auth

import "context"

type contextKey struct{}

// WithIdentity returns a context carrying the verified identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the verified identity from the context, if present.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok
}
