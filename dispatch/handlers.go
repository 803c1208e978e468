package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* Built-in handlers for the mail provider callback types
 * They acknowledge receipt and hand off a typed payload; the business
 * logic following each event lives with the consumer of the outcome
 */

// Event type names delivered by the upstream mail provider
const (
	EventReceived   = "received"
	EventBounced    = "bounced"
	EventComplained = "complained"
	EventDelivered  = "delivered"
)

// MailEvent is the typed data carried by the built-in mail callbacks
type MailEvent struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason,omitempty"`
}

// NewMailRegistry creates a registry with the four built-in mail
// callback handlers registered; callers may Register additional types
func NewMailRegistry() (*Registry, error) {
	r := NewRegistry()
	for eventType, verb := range map[string]string{
		EventReceived:   "received",
		EventBounced:    "recorded bounce",
		EventComplained: "recorded complaint",
		EventDelivered:  "confirmed delivery",
	} {
		if err := r.Register(eventType, mailHandler(verb)); err != nil {
			return nil, fmt.Errorf("registering %s handler: %w", eventType, err)
		}
	}
	return r, nil
}

// mailHandler builds a handler that validates the typed mail payload
// and summarizes the side effect it acknowledged
func mailHandler(verb string) Handler {
	return HandlerFunc(func(_ context.Context, data json.RawMessage) (Outcome, error) {
		var event MailEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return Outcome{}, webhook.Permanent(fmt.Errorf("decoding mail event: %w", err))
		}
		if event.Recipient == "" {
			return Outcome{}, webhook.Permanent(fmt.Errorf("mail event missing recipient"))
		}

		return Outcome{
			Processed:          true,
			SideEffectsSummary: fmt.Sprintf("%s for %s", verb, event.Recipient),
		}, nil
	})
}
