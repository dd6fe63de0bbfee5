// Package correlation ties the log lines, spans and audit entries of one
// partner move together under a single ULID.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header lets a caller supply its own id for an on-demand evaluation.
const Header = "X-Correlation-ID"

type ctxKey struct{}

func New() string {
	return ulid.Make().String()
}

// FromContext returns the id stored on ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID stores id on ctx. Blank ids are ignored.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure keeps an existing id or mints a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := New()
	return WithID(ctx, id), id
}
