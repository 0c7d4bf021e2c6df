package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tasktrack"

// Metrics holds all Tasktrack metric instruments. A nil *Metrics records
// nothing, so services and tests can run without telemetry.
type Metrics struct {
	Transitions     metric.Int64Counter
	Denials         metric.Int64Counter
	Conflicts       metric.Int64Counter
	Uploads         metric.Int64Counter
	UploadBytes     metric.Int64Histogram
	Summaries       metric.Int64Counter
	SummaryDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Transitions, err = meter.Int64Counter("tasktrack.task.transitions",
		metric.WithDescription("Applied workflow transitions"))
	if err != nil {
		return nil, err
	}

	m.Denials, err = meter.Int64Counter("tasktrack.task.denials",
		metric.WithDescription("Actions rejected by the authorization guard"))
	if err != nil {
		return nil, err
	}

	m.Conflicts, err = meter.Int64Counter("tasktrack.store.conflicts",
		metric.WithDescription("Writes rejected for a stale version"))
	if err != nil {
		return nil, err
	}

	m.Uploads, err = meter.Int64Counter("tasktrack.evidence.uploads",
		metric.WithDescription("Evidence documents attached"))
	if err != nil {
		return nil, err
	}

	m.UploadBytes, err = meter.Int64Histogram("tasktrack.evidence.upload_bytes",
		metric.WithDescription("Size of attached evidence documents"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	m.Summaries, err = meter.Int64Counter("tasktrack.evidence.summaries",
		metric.WithDescription("Summaries recorded, by outcome"))
	if err != nil {
		return nil, err
	}

	m.SummaryDuration, err = meter.Float64Histogram("tasktrack.evidence.summary_duration_seconds",
		metric.WithDescription("Time spent producing a summary"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTransition counts an applied workflow action.
func (m *Metrics) RecordTransition(ctx context.Context, action, from, to string) {
	if m == nil {
		return
	}
	m.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordDenial counts a guard rejection.
func (m *Metrics) RecordDenial(ctx context.Context, action, reason string) {
	if m == nil {
		return
	}
	m.Denials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("reason", reason),
	))
}

// RecordConflict counts a stale-version write.
func (m *Metrics) RecordConflict(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.Conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordUpload counts an attached document and its size.
func (m *Metrics) RecordUpload(ctx context.Context, ext string, size int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("extension", ext))
	m.Uploads.Add(ctx, 1, attrs)
	m.UploadBytes.Record(ctx, size, attrs)
}

// RecordSummary counts a summarization outcome and how long it took.
func (m *Metrics) RecordSummary(ctx context.Context, state string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.Summaries.Add(ctx, 1, attrs)
	m.SummaryDuration.Record(ctx, d.Seconds(), attrs)
}
