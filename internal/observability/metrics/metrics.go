package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the domain counters exported over OTLP. A nil *Metrics
// records nothing.
type Metrics struct {
	activityRecorded  metric.Int64Counter
	groupMoves        metric.Int64Counter
	moveRuleConflicts metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "partnerflow"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.activityRecorded, "partnerflow_activity_recorded_total", "Partner activity deltas recorded, by kind."},
		{&m.groupMoves, "partnerflow_group_moves_total", "Partner group changes, by source (rule or manual)."},
		{&m.moveRuleConflicts, "partnerflow_move_rule_conflicts_total", "Move rule saves rejected for conflicting with another group."},
		{&m.rateLimitAllowed, "partnerflow_rate_limit_allowed_total", "Activity requests admitted by the rate limiter."},
		{&m.rateLimitDenied, "partnerflow_rate_limit_denied_total", "Activity requests rejected by the rate limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordActivity counts one activity delta of kind (leads, conversions, ...).
func (m *Metrics) RecordActivity(ctx context.Context, programID, kind string) {
	if m == nil {
		return
	}
	add(ctx, m.activityRecorded, label("program_id", programID), label("kind", kind))
}

// RecordGroupMove counts a partner group change. source is "rule" or "manual".
func (m *Metrics) RecordGroupMove(ctx context.Context, programID, source string) {
	if m == nil {
		return
	}
	add(ctx, m.groupMoves, label("program_id", programID), label("source", source))
}

func (m *Metrics) RecordMoveRuleConflict(ctx context.Context, programID string) {
	if m == nil {
		return
	}
	add(ctx, m.moveRuleConflicts, label("program_id", programID))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, programID, endpoint string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitAllowed, label("program_id", programID), label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, programID, endpoint, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitDenied, label("program_id", programID), label("endpoint", endpoint), label("reason", reason))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// Partner and group ids are unbounded and never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"program_id":  {},
	"endpoint":    {},
	"status_code": {},
	"kind":        {},
	"source":      {},
	"reason":      {},
}

// FilterAttributes drops labels outside the allow list.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
