package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type programIDKey struct{}
type actorKey struct{}
type clientKey struct{}

type actor struct {
	actorType string
	actorID   string
}

type client struct {
	ipAddress string
	userAgent string
}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithProgramID stores the program identifier for log correlation.
func WithProgramID(ctx stdcontext.Context, programID string) stdcontext.Context {
	programID = strings.TrimSpace(programID)
	if programID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, programIDKey{}, programID)
}

func ProgramIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(programIDKey{}).(string)
	return value
}

// WithActor records who is performing the current operation.
func WithActor(ctx stdcontext.Context, actorType, actorID string) stdcontext.Context {
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, actorKey{}, actor{actorType: actorType, actorID: strings.TrimSpace(actorID)})
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.actorType, value.actorID
}

// WithClient records the caller's network identity for audit entries.
func WithClient(ctx stdcontext.Context, ipAddress, userAgent string) stdcontext.Context {
	return stdcontext.WithValue(ctx, clientKey{}, client{
		ipAddress: strings.TrimSpace(ipAddress),
		userAgent: strings.TrimSpace(userAgent),
	})
}

func ClientFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(clientKey{}).(client)
	if !ok {
		return "", ""
	}
	return value.ipAddress, value.userAgent
}
