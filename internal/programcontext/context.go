package programcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// ProgramContextKey is the request context key for the active program ID.
type ProgramContextKey struct{}

// WithProgramID stores the program ID in the context.
func WithProgramID(ctx context.Context, programID int64) context.Context {
	return context.WithValue(ctx, ProgramContextKey{}, programID)
}

// ProgramIDFromContext returns the program ID from context, if set.
func ProgramIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(ProgramContextKey{}).(type) {
	case int64:
		return snowflake.ID(typed), typed != 0
	case snowflake.ID:
		return typed, typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
