package webhook

import (
	"strconv"
	"strings"
	"time"
)

/* Envelope represents one inbound webhook delivery exactly as received
 * Uses value semantics as it represents data, not behavior
 * Immutable once created: downstream stages wrap it, never mutate it
 */
type Envelope struct {
	ID         string
	EventType  string
	ReceivedAt time.Time
	RawBody    []byte
	Headers    map[string]string
	SourceAddr string
}

// Header names carried by Standard Webhooks deliveries
const (
	HeaderID            = "webhook-id"
	HeaderSignature     = "webhook-signature"
	HeaderTimestamp     = "webhook-timestamp"
	HeaderAuthorization = "authorization"
)

/* SignedPayload is the derived view of an Envelope used during validation
 * It exists only while the signature and freshness checks run
 */
type SignedPayload struct {
	MessageID        string
	Signature        string
	ClaimedTimestamp time.Time
	Body             []byte
}

// Header returns the named header, matching case-insensitively.
// Inbound transports are not consistent about header casing.
func (e Envelope) Header(name string) string {
	if v, ok := e.Headers[name]; ok {
		return v
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Signed derives the SignedPayload view from the envelope headers.
// A missing or malformed timestamp header yields a zero ClaimedTimestamp;
// the validators treat that as stale rather than erroring here.
func (e Envelope) Signed() SignedPayload {
	sp := SignedPayload{
		MessageID: e.Header(HeaderID),
		Signature: e.Header(HeaderSignature),
		Body:      e.RawBody,
	}
	if raw := e.Header(HeaderTimestamp); raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			sp.ClaimedTimestamp = time.Unix(unix, 0).UTC()
		}
	}
	return sp
}
