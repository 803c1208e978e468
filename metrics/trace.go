package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxRetainedTraces bounds the completed-trace buffer; the oldest
// trace is dropped once full
const maxRetainedTraces = 256

// Span is one timed pipeline stage within a trace
type Span struct {
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

/* TraceRecord is the full record of one webhook's journey through the
 * pipeline: an append-only span list rather than call-stack context
 * propagation, which keeps it correct under concurrent execution
 * TotalDuration is the sum of span durations (not the wall-clock
 * distance between first and last span)
 */
type TraceRecord struct {
	TraceID       string        `json:"trace_id"`
	WebhookID     string        `json:"webhook_id"`
	Spans         []Span        `json:"spans"`
	TotalDuration time.Duration `json:"total_duration"`
}

/* Tracer assembles one TraceRecord per webhook
 * Active traces accept spans until EndTrace moves them into the
 * bounded completed buffer
 */
type Tracer struct {
	mu        sync.Mutex
	active    map[string]*TraceRecord
	completed []TraceRecord
	now       func() time.Time
}

// NewTracer creates an empty tracer
func NewTracer() *Tracer {
	return NewTracerWithClock(time.Now)
}

// NewTracerWithClock creates a tracer with an injected clock
func NewTracerWithClock(now func() time.Time) *Tracer {
	return &Tracer{
		active: make(map[string]*TraceRecord),
		now:    now,
	}
}

// StartTrace opens a trace for one webhook and returns its trace ID
func (t *Tracer) StartTrace(webhookID string) string {
	traceID := uuid.New().String()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[traceID] = &TraceRecord{
		TraceID:   traceID,
		WebhookID: webhookID,
	}
	return traceID
}

// AddSpan appends one timed stage to an active trace.
// Spans for unknown trace IDs are dropped rather than erroring: a
// trace that was never started must not fail the pipeline stage.
func (t *Tracer) AddSpan(traceID, name string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.active[traceID]
	if !ok {
		return
	}
	rec.Spans = append(rec.Spans, Span{
		Name:      name,
		StartedAt: t.now().Add(-duration),
		Duration:  duration,
	})
	rec.TotalDuration += duration
}

// EndTrace closes the trace and moves it into the completed buffer
func (t *Tracer) EndTrace(traceID string) (TraceRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.active[traceID]
	if !ok {
		return TraceRecord{}, fmt.Errorf("unknown trace: %s", traceID)
	}
	delete(t.active, traceID)

	t.completed = append(t.completed, *rec)
	if len(t.completed) > maxRetainedTraces {
		t.completed = t.completed[1:]
	}
	return *rec, nil
}

// Completed returns a snapshot of the retained completed traces
func (t *Tracer) Completed() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make([]TraceRecord, len(t.completed))
	copy(snapshot, t.completed)
	return snapshot
}
