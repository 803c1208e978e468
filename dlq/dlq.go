package dlq

import (
	"context"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* Sink is the terminal store for envelopes that exhausted every retry
 * attempt, kept for manual inspection and replay
 */
type Sink interface {
	// Submit hands the envelope and its final error to the dead-letter
	// store and returns the stored message ID
	Submit(ctx context.Context, env webhook.Envelope, cause error) (string, error)
}
