package webhook

import "fmt"

/* Status represents the terminal outcome of one webhook's trip through
 * the pipeline: Succeeded/Duplicate for accepted deliveries,
 * Rejected for ingress failures, Failed/DeadLettered for processing failures
 */
type Status int

const (
	Succeeded Status = iota + 1
	Duplicate
	Rejected
	Failed
	DeadLettered
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	case DeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Succeeded || s > DeadLettered {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// OK reports whether the webhook's payload was handled (first or repeat delivery)
func (s Status) OK() bool {
	return s == Succeeded || s == Duplicate
}
