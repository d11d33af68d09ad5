// ABOUTME: Viewer identity propagation through request contexts
// ABOUTME: Provides WithViewer/ViewerFromContext for handlers

package auth

import (
	"context"
)

// viewerKey is the key type for storing the viewer ID in context.Context
type viewerKey struct{}

// WithViewer returns a new context with the viewer's user ID attached
func WithViewer(ctx context.Context, viewerID string) context.Context {
	return context.WithValue(ctx, viewerKey{}, viewerID)
}

// ViewerFromContext retrieves the viewer ID from the context, returning
// the empty string if not present.
func ViewerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(viewerKey{}).(string)
	return id
}
