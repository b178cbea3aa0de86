package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OTel metric instruments for the datastack servers.
type Metrics struct {
	QueryCount    metric.Int64Counter
	QueryDuration metric.Float64Histogram
	BytesScanned  metric.Int64Counter
	CacheHits     metric.Int64Counter
	ToolCalls     metric.Int64Counter
	EmailsSent    metric.Int64Counter
}

// NewMetrics creates the datastack metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("datastack")

	queryCount, err := meter.Int64Counter("datastack.query.count",
		metric.WithDescription("Number of queries reaching a terminal state"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram("datastack.query.duration_seconds",
		metric.WithDescription("End-to-end query execution time"),
	)
	if err != nil {
		return nil, err
	}

	bytesScanned, err := meter.Int64Counter("datastack.query.scanned_bytes",
		metric.WithDescription("Bytes scanned by completed queries"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter("datastack.query.cache_hits",
		metric.WithDescription("Status polls answered from the terminal-state cache"),
	)
	if err != nil {
		return nil, err
	}

	toolCalls, err := meter.Int64Counter("datastack.tool.calls",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}

	emailsSent, err := meter.Int64Counter("datastack.email.sent",
		metric.WithDescription("Number of emails handed to a delivery provider"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
		BytesScanned:  bytesScanned,
		CacheHits:     cacheHits,
		ToolCalls:     toolCalls,
		EmailsSent:    emailsSent,
	}, nil
}

// RecordQueryTerminal records a query that reached a terminal state.
// A nil receiver records nothing, so metrics stay optional at wiring time.
func (m *Metrics) RecordQueryTerminal(ctx context.Context, state string, scanned int64, d time.Duration) {
	if m == nil {
		return
	}
	m.QueryCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
	if scanned > 0 {
		m.BytesScanned.Add(ctx, scanned)
	}
	if d > 0 {
		m.QueryDuration.Record(ctx, d.Seconds())
	}
}

// RecordCacheHit records a status poll served without a remote call.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// RecordToolCall records a tool invocation and its outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordEmailSent records an email handed to a provider.
func (m *Metrics) RecordEmailSent(ctx context.Context, provider string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.EmailsSent.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		),
	)
}
