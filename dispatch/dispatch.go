package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* Registry maps event types to their handlers
 * Resolved once at startup; Dispatch is a pure lookup, so there is no
 * type-string branching scattered through the pipeline
 */

// Outcome is the structured result a handler returns.
// It becomes the idempotency commit payload and a trace annotation.
type Outcome struct {
	Processed          bool   `json:"processed"`
	SideEffectsSummary string `json:"side_effects_summary,omitempty"`
}

// Handler processes the data of one event type
type Handler interface {
	Handle(ctx context.Context, data json.RawMessage) (Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, data json.RawMessage) (Outcome, error)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, data json.RawMessage) (Outcome, error) {
	return f(ctx, data)
}

// Registry holds the event type to handler mapping
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to an event type.
// Registration happens at startup, before any dispatching; the registry
// is not safe for concurrent mutation.
func (r *Registry) Register(eventType string, h Handler) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("handler already registered for %q", eventType)
	}

	r.handlers[eventType] = h
	return nil
}

// Has reports whether a handler is registered for the event type.
// The pipeline consults this before claiming an idempotency key so an
// unsupported type is rejected at ingress, not recorded as a failure.
func (r *Registry) Has(eventType string) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Types returns the registered event types
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Dispatch routes the event data to the handler for its type.
// An unknown type is a validation rejection, not a dispatch failure:
// it is terminal and never retried.
func (r *Registry) Dispatch(ctx context.Context, eventType string, data json.RawMessage) (Outcome, error) {
	h, ok := r.handlers[eventType]
	if !ok {
		return Outcome{}, webhook.Validation(fmt.Errorf("unsupported event type: %q", eventType))
	}

	return h.Handle(ctx, data)
}
