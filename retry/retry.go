package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/marcelsud/webhook-engine/breaker"
	"github.com/marcelsud/webhook-engine/dlq"
	"github.com/marcelsud/webhook-engine/webhook"
)

/* Policy bounds one retry loop invocation
 * MaxRetries is the total number of attempts; delays between attempts
 * grow exponentially up to MaxDelay
 */
type Policy struct {
	MaxRetries            int
	InitialDelay          time.Duration
	MaxDelay              time.Duration
	ExponentialBase       float64
	UseJitter             bool
	SendToDLQOnExhaustion bool
}

// DefaultPolicy returns the retry policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:            3,
		InitialDelay:          100 * time.Millisecond,
		MaxDelay:              5 * time.Second,
		ExponentialBase:       2,
		UseJitter:             true,
		SendToDLQOnExhaustion: true,
	}
}

// Delay returns the unjittered backoff delay after the given
// zero-based attempt: min(MaxDelay, InitialDelay * base^attempt)
func (p Policy) Delay(attempt int) time.Duration {
	base := p.ExponentialBase
	if base <= 0 {
		base = 2
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(base, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Work is one processing call wrapped by the orchestrator
type Work func(ctx context.Context) ([]byte, error)

// Outcome is the result of one orchestrated processing call
type Outcome struct {
	Result       []byte
	Attempts     int
	SentToDLQ    bool
	DLQMessageID string
}

/* Orchestrator wraps processing calls with bounded exponential backoff,
 * jitter, circuit breaking and dead-letter fallback
 * Backoff suspends only the goroutine handling that one event; jitter
 * spreads concurrent retries so they do not synchronize into storms
 */
type Orchestrator struct {
	breakers *breaker.Registry
	sink     dlq.Sink
	sleep    func(ctx context.Context, d time.Duration) error
	rand     func() float64
}

// Config holds the orchestrator collaborators; Sleep and Rand default
// to a context-aware timer and math/rand
type Config struct {
	Breakers *breaker.Registry
	DLQ      dlq.Sink
	Sleep    func(ctx context.Context, d time.Duration) error
	Rand     func() float64
}

// NewOrchestrator creates an orchestrator reporting to the given
// breaker registry
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		breakers: cfg.Breakers,
		sink:     cfg.DLQ,
		sleep:    cfg.Sleep,
		rand:     cfg.Rand,
	}
	if o.breakers == nil {
		o.breakers = breaker.NewRegistry(breaker.Settings{})
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.rand == nil {
		o.rand = rand.Float64
	}
	return o
}

// Do runs work against the named downstream service under the given
// policy. Transient failures are retried with backoff; permanent
// failures and open circuits go straight to the exhaustion path.
// Every attempt outcome is reported to the breaker registry.
func (o *Orchestrator) Do(ctx context.Context, service string, env webhook.Envelope, policy Policy, work Work) (Outcome, error) {
	maxAttempts := policy.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	outcome := Outcome{}
	for attempt := 1; ; attempt++ {
		if err := o.breakers.Allow(service); err != nil {
			// Short-circuit: no sleeping, no attempt against the downstream
			return o.exhaust(ctx, env, policy, outcome, webhook.CircuitOpen(err))
		}

		result, err := work(ctx)
		outcome.Attempts = attempt
		if err == nil {
			o.breakers.ReportSuccess(service)
			outcome.Result = result
			return outcome, nil
		}
		o.breakers.ReportFailure(service)

		if !webhook.IsTransient(err) {
			return o.exhaust(ctx, env, policy, outcome, err)
		}
		if attempt >= maxAttempts {
			return o.exhaust(ctx, env, policy, outcome, err)
		}

		delay := policy.Delay(attempt - 1)
		if policy.UseJitter {
			delay = time.Duration(float64(delay) * (0.5 + o.rand()))
		}
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			// Caller deadline aborted the loop between attempts
			return outcome, sleepErr
		}
	}
}

// exhaust hands the envelope to the dead-letter sink when the policy
// asks for it and surfaces the final error either way
func (o *Orchestrator) exhaust(ctx context.Context, env webhook.Envelope, policy Policy, outcome Outcome, cause error) (Outcome, error) {
	if policy.SendToDLQOnExhaustion && o.sink != nil {
		msgID, err := o.sink.Submit(ctx, env, cause)
		if err != nil {
			return outcome, fmt.Errorf("submitting to dead-letter sink: %w (original error: %v)", err, cause)
		}
		outcome.SentToDLQ = true
		outcome.DLQMessageID = msgID
	}
	return outcome, cause
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
