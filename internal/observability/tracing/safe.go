package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const maxErrorMessageLength = 256

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"program_id":              {},
	"partner_id":              {},
	"group_id":                {},
	"job":                     {},
}

// ExtractContext reads propagated trace headers into ctx.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes keeps only attributes that are known not to carry payload data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

// SafeError returns a truncated single-line copy of err suitable for span events.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxErrorMessageLength {
		msg = msg[:maxErrorMessageLength]
	}
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
