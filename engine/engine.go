package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-engine/dispatch"
	"github.com/marcelsud/webhook-engine/idempotency"
	"github.com/marcelsud/webhook-engine/metrics"
	"github.com/marcelsud/webhook-engine/retry"
	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/origin"
	"github.com/marcelsud/webhook-engine/webhook/payload"
	"github.com/marcelsud/webhook-engine/webhook/signature"
)

// DefaultResultTTL is how long a processed delivery's result is kept
// for duplicate suppression
const DefaultResultTTL = 24 * time.Hour

// Pipeline stage names as they appear in trace spans
const (
	SpanSignature = "signature_validation"
	SpanOrigin    = "origin_validation"
	SpanPayload   = "payload_validation"
	SpanProcess   = "processing"
)

// UseCase defines the business operation for webhook ingestion
type UseCase interface {
	Process(ctx context.Context, env webhook.Envelope) (Result, error)
}

// Result is the terminal outcome of one delivery
type Result struct {
	TraceID      string
	EventType    string
	Status       webhook.Status
	WasDuplicate bool
	SentToDLQ    bool
	DLQMessageID string
	Response     []byte
}

/* Service runs the full ingestion pipeline for one delivery:
 * signature, origin and payload validation, then idempotency-guarded
 * dispatch under retry and circuit-breaker protection
 * Uses pointer semantics as it's an API, not data
 */
type Service struct {
	signatures   *signature.Validator
	origin       *origin.Validator
	idempotent   *idempotency.Coordinator
	orchestrator *retry.Orchestrator
	dispatcher   *dispatch.Registry
	collector    *metrics.Collector
	tracer       *metrics.Tracer
	policy       retry.Policy
	resultTTL    time.Duration
	now          func() time.Time
}

// Config holds the pipeline collaborators; Policy, ResultTTL, Collector,
// Tracer and Now take defaults when zero
type Config struct {
	Signatures   *signature.Validator
	Origin       *origin.Validator
	Idempotent   *idempotency.Coordinator
	Orchestrator *retry.Orchestrator
	Dispatcher   *dispatch.Registry
	Collector    *metrics.Collector
	Tracer       *metrics.Tracer
	Policy       retry.Policy
	ResultTTL    time.Duration
	Now          func() time.Time
}

// NewService creates a pipeline service with dependency injection
func NewService(cfg Config) (*Service, error) {
	if cfg.Signatures == nil {
		return nil, fmt.Errorf("signature validator is required")
	}
	if cfg.Origin == nil {
		return nil, fmt.Errorf("origin validator is required")
	}
	if cfg.Idempotent == nil {
		return nil, fmt.Errorf("idempotency coordinator is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("retry orchestrator is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	s := &Service{
		signatures:   cfg.Signatures,
		origin:       cfg.Origin,
		idempotent:   cfg.Idempotent,
		orchestrator: cfg.Orchestrator,
		dispatcher:   cfg.Dispatcher,
		collector:    cfg.Collector,
		tracer:       cfg.Tracer,
		policy:       cfg.Policy,
		resultTTL:    cfg.ResultTTL,
		now:          cfg.Now,
	}
	if s.collector == nil {
		s.collector = metrics.NewCollector(metrics.Config{})
	}
	if s.tracer == nil {
		s.tracer = metrics.NewTracer()
	}
	if s.policy == (retry.Policy{}) {
		s.policy = retry.DefaultPolicy()
	}
	if s.resultTTL <= 0 {
		s.resultTTL = DefaultResultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Process runs one delivery through the pipeline and returns its
// terminal outcome. Rejections (bad signature, stale timestamp,
// disallowed origin, malformed payload) never reach the dispatcher.
func (s *Service) Process(ctx context.Context, env webhook.Envelope) (Result, error) {
	started := s.now()
	traceID := s.tracer.StartTrace(env.ID)
	result := Result{TraceID: traceID}

	sp := env.Signed()

	stageStart := s.now()
	if err := s.signatures.Validate(sp); err != nil {
		s.tracer.AddSpan(traceID, SpanSignature, s.now().Sub(stageStart))
		return s.finish(result, "unknown", webhook.Rejected, started, err)
	}
	s.tracer.AddSpan(traceID, SpanSignature, s.now().Sub(stageStart))

	stageStart = s.now()
	if err := s.origin.Validate(env, sp); err != nil {
		s.tracer.AddSpan(traceID, SpanOrigin, s.now().Sub(stageStart))
		return s.finish(result, "unknown", webhook.Rejected, started, err)
	}
	s.tracer.AddSpan(traceID, SpanOrigin, s.now().Sub(stageStart))

	stageStart = s.now()
	p, err := payload.Parse(env.RawBody)
	if err != nil {
		s.tracer.AddSpan(traceID, SpanPayload, s.now().Sub(stageStart))
		return s.finish(result, "unknown", webhook.Rejected, started, err)
	}
	s.tracer.AddSpan(traceID, SpanPayload, s.now().Sub(stageStart))
	result.EventType = p.Type
	// The ingress layer cannot know the event type before parsing;
	// stamp it here so the dead-letter sink stores a complete envelope
	env.EventType = p.Type

	if !s.dispatcher.Has(p.Type) {
		err := webhook.Validation(fmt.Errorf("unsupported event type: %q", p.Type))
		return s.finish(result, p.Type, webhook.Rejected, started, err)
	}

	key := idempotency.Key(p.Type, sp.MessageID, sp.ClaimedTimestamp)

	var lastAttempt retry.Outcome
	stageStart = s.now()
	outcome, err := s.idempotent.ProcessOnce(ctx, key, s.resultTTL, func(ctx context.Context) ([]byte, error) {
		attempt, err := s.orchestrator.Do(ctx, p.Type, env, s.policy, func(ctx context.Context) ([]byte, error) {
			handled, err := s.dispatcher.Dispatch(ctx, p.Type, p.Data)
			if err != nil {
				return nil, err
			}
			response, err := json.Marshal(handled)
			if err != nil {
				return nil, webhook.Permanent(fmt.Errorf("encoding dispatch outcome: %w", err))
			}
			return response, nil
		})
		lastAttempt = attempt
		return attempt.Result, err
	})
	s.tracer.AddSpan(traceID, SpanProcess, s.now().Sub(stageStart))

	result.SentToDLQ = lastAttempt.SentToDLQ
	result.DLQMessageID = lastAttempt.DLQMessageID

	if err != nil {
		status := webhook.Failed
		if lastAttempt.SentToDLQ {
			status = webhook.DeadLettered
		}
		return s.finish(result, p.Type, status, started, err)
	}

	result.Response = outcome.Result
	result.WasDuplicate = outcome.WasDuplicate
	status := webhook.Succeeded
	if outcome.WasDuplicate {
		status = webhook.Duplicate
	}
	return s.finish(result, p.Type, status, started, nil)
}

// finish closes the trace, records the terminal sample and stamps the
// result status
func (s *Service) finish(result Result, eventType string, status webhook.Status, started time.Time, err error) (Result, error) {
	result.Status = status
	if _, endErr := s.tracer.EndTrace(result.TraceID); endErr != nil {
		result.TraceID = ""
	}
	s.collector.Record(metrics.Sample{
		EventType: eventType,
		Outcome:   status,
		Latency:   s.now().Sub(started),
		Timestamp: s.now(),
	})
	return result, err
}
