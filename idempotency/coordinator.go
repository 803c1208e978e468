package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultOwnerWait bounds how long a duplicate delivery waits for the
	// in-flight owner before presuming it dead and claiming the key itself
	DefaultOwnerWait = 10 * time.Second

	// DefaultPollInitial is the first wait-for-owner poll interval
	DefaultPollInitial = 50 * time.Millisecond

	// DefaultPollMax caps the wait-for-owner poll interval
	DefaultPollMax = 500 * time.Millisecond
)

// ErrPreviouslyFailed is returned to duplicate deliveries whose key was
// already processed and failed within the TTL window. Retries were
// already exhausted by the original owner; replaying the same delivery
// will not change the outcome until the record expires.
var ErrPreviouslyFailed = errors.New("idempotency: previous attempt for this key failed")

// Work is the side-effecting call guarded by an idempotency key
type Work func(ctx context.Context) ([]byte, error)

// Outcome is the result of a ProcessOnce call
type Outcome struct {
	Result       []byte
	WasDuplicate bool
}

/* Coordinator provides single-flight semantics over a shared Store:
 * for N concurrent deliveries of the same key exactly one executes the
 * work, the rest join its result
 *
 * The wait-for-owner step is bounded: after OwnerWait the owner is
 * presumed dead and the waiter claims the key itself. This bounds
 * worst-case latency for stuck owners at the cost of a rare
 * double-execution window, which is an accepted tradeoff
 */
type Coordinator struct {
	store       Store
	ownerWait   time.Duration
	pollInitial time.Duration
	pollMax     time.Duration
	now         func() time.Time
}

// Config holds the coordinator tuning knobs; zero values take defaults
type Config struct {
	OwnerWait   time.Duration
	PollInitial time.Duration
	PollMax     time.Duration
	Now         func() time.Time
}

// NewCoordinator creates a coordinator over the given store
func NewCoordinator(store Store, cfg Config) *Coordinator {
	c := &Coordinator{
		store:       store,
		ownerWait:   cfg.OwnerWait,
		pollInitial: cfg.PollInitial,
		pollMax:     cfg.PollMax,
		now:         cfg.Now,
	}
	if c.ownerWait <= 0 {
		c.ownerWait = DefaultOwnerWait
	}
	if c.pollInitial <= 0 {
		c.pollInitial = DefaultPollInitial
	}
	if c.pollMax <= 0 {
		c.pollMax = DefaultPollMax
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ProcessOnce executes work at most once per key within ttl.
// Duplicate deliveries observe the owner's stored result with
// WasDuplicate set; concurrent deliveries block until the owner
// finishes or the owner-wait deadline passes.
func (c *Coordinator) ProcessOnce(ctx context.Context, key string, ttl time.Duration, work Work) (Outcome, error) {
	for {
		now := c.now()
		pending := Record{
			Key:       key,
			Status:    Pending,
			CreatedAt: now,
			ExpiresAt: now.Add(c.ownerWait),
		}

		/* The pending record carries a short lease rather than the full
		 * TTL: if the owner dies mid-flight the lease expires and the
		 * key becomes claimable again
		 */
		inserted, err := c.store.InsertIfAbsent(ctx, key, pending, c.ownerWait)
		if err != nil {
			return Outcome{}, fmt.Errorf("claiming idempotency key: %w", err)
		}
		if inserted {
			return c.runAsOwner(ctx, key, ttl, work)
		}

		rec, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return Outcome{}, fmt.Errorf("reading idempotency record: %w", err)
		}
		if !ok {
			// Record expired between the insert attempt and the read; claim again
			continue
		}

		switch rec.Status {
		case Completed:
			return Outcome{Result: rec.Result, WasDuplicate: true}, nil
		case Failed:
			return Outcome{WasDuplicate: true}, ErrPreviouslyFailed
		}

		outcome, retry, err := c.waitForOwner(ctx, key, ttl, work)
		if retry {
			continue
		}
		return outcome, err
	}
}

// waitForOwner polls the record of an in-flight owner with bounded
// backoff. Returns retry=true when the record vanished and the caller
// should attempt a fresh claim.
func (c *Coordinator) waitForOwner(ctx context.Context, key string, ttl time.Duration, work Work) (Outcome, bool, error) {
	deadline := c.now().Add(c.ownerWait)
	interval := c.pollInitial

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, false, ctx.Err()
		case <-time.After(interval):
		}
		if interval *= 2; interval > c.pollMax {
			interval = c.pollMax
		}

		rec, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return Outcome{}, false, fmt.Errorf("polling idempotency record: %w", err)
		}
		if !ok {
			return Outcome{}, true, nil
		}

		switch rec.Status {
		case Completed:
			return Outcome{Result: rec.Result, WasDuplicate: true}, false, nil
		case Failed:
			return Outcome{WasDuplicate: true}, false, ErrPreviouslyFailed
		}

		if c.now().After(deadline) {
			// Owner presumed dead: take the claim over in place
			now := c.now()
			takeover := Record{
				Key:       key,
				Status:    Pending,
				CreatedAt: now,
				ExpiresAt: now.Add(c.ownerWait),
			}
			if err := c.store.Update(ctx, key, takeover); err != nil {
				return Outcome{}, false, fmt.Errorf("taking over idempotency key: %w", err)
			}
			outcome, err := c.runAsOwner(ctx, key, ttl, work)
			return outcome, false, err
		}
	}
}

// runAsOwner executes the work and commits the result record.
// The commit deliberately survives caller cancellation: an aborted
// caller must not leave a pending record that blocks later deliveries.
func (c *Coordinator) runAsOwner(ctx context.Context, key string, ttl time.Duration, work Work) (Outcome, error) {
	result, workErr := work(ctx)

	commitCtx := context.WithoutCancel(ctx)
	now := c.now()
	rec := Record{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if workErr != nil {
		rec.Status = Failed
	} else {
		rec.Status = Completed
		rec.Result = result
	}

	if err := c.store.Update(commitCtx, key, rec); err != nil {
		if workErr != nil {
			return Outcome{}, workErr
		}
		return Outcome{}, fmt.Errorf("committing idempotency record: %w", err)
	}

	return Outcome{Result: result}, workErr
}
