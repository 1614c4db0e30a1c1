// Package correlation plumbs an opaque correlation identifier end-to-end:
// inbound HTTP header -> context -> outbound calls and event payloads.
// The id is never parsed, only forwarded.
package correlation

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the correlation id.
const Header = "X-Correlation-ID"

type ctxKey struct{}

// WithID returns a context carrying the given correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id, or "" if none is set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromRequest reads the correlation id from the request header, minting a
// fresh one when the caller sent none.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	return uuid.NewString()
}

// Ensure returns id unchanged when non-empty, otherwise a fresh uuid.
func Ensure(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
