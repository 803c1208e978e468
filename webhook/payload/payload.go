package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

/* Payload is the expected shape of a webhook body after validation
 * { type, timestamp, data } per the Standard Webhooks convention
 */
type Payload struct {
	// Type is a full-stop delimited type associated with the event
	// Examples: "delivered", "bounced", "complained", "email.received"
	Type string `json:"type"`

	// Timestamp is the ISO 8601 formatted timestamp of when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Data is the actual event data associated with the event
	Data json.RawMessage `json:"data"`
}

// Validate validates the payload structure
func (p Payload) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("type is required")
	}

	if !eventTypePattern.MatchString(p.Type) {
		return fmt.Errorf("type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", p.Type)
	}

	if p.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if len(p.Data) == 0 {
		return fmt.Errorf("data is required")
	}

	if !json.Valid(p.Data) {
		return fmt.Errorf("data must be valid JSON")
	}

	return nil
}

// UnmarshalJSON parses the JSON-encoded data and stores the result
func (p *Payload) UnmarshalJSON(data []byte) error {
	type Alias Payload
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}

	// Accept RFC3339 with or without sub-second precision
	timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		timestamp, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
	}
	p.Timestamp = timestamp

	return nil
}

// Parse parses and validates a raw webhook body.
// Failures are classified as validation rejections: they are terminal
// and are never retried.
func Parse(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, webhook.Validation(fmt.Errorf("unmarshaling payload: %w", err))
	}

	if err := p.Validate(); err != nil {
		return Payload{}, webhook.Validation(fmt.Errorf("validating payload: %w", err))
	}

	return p, nil
}
