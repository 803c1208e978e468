package idempotency

import (
	"context"
	"fmt"
	"time"
)

/* Record tracks the processing state of one idempotency key
 * Owned exclusively by the Coordinator; stores only persist it
 * Lifecycle: pending on first claim, completed/failed when the owner
 * finishes, treated as absent once ExpiresAt passes
 */
type Record struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	Result    []byte    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status represents the processing state of an idempotency record
type Status int

const (
	Pending Status = iota + 1
	Completed
	Failed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "completed":
		return Completed
	case "failed":
		return Failed
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Failed {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

/* Store is the capability the coordinator requires from a key-value
 * collaborator. All three operations must be atomic: ordinary
 * read-modify-write is unsafe under concurrent delivery
 */
type Store interface {
	/* InsertIfAbsent inserts rec under key only if no live record exists
	 * Returns true if the insert happened (the caller is now the owner)
	 * Records past their TTL count as absent
	 */
	InsertIfAbsent(ctx context.Context, key string, rec Record, ttl time.Duration) (bool, error)

	// Get returns the live record for key, if any
	Get(ctx context.Context, key string) (Record, bool, error)

	/* Update overwrites the record for key, extending its lifetime to
	 * rec.ExpiresAt
	 */
	Update(ctx context.Context, key string, rec Record) error
}
