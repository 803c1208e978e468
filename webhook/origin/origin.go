package origin

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
)

const (
	// DefaultMaxAge is the default freshness window for claimed timestamps
	DefaultMaxAge = 300 * time.Second

	// DefaultClockSkew is the default tolerance for timestamps slightly in the future
	DefaultClockSkew = 5 * time.Second
)

/* Validator checks where a webhook came from and when it claims to have
 * been sent. Both checks are optional: a zero MaxAge disables the
 * freshness check and empty Rules disable the allow-list check.
 * The allow-list fails closed: configured rules with no match reject.
 */
type Validator struct {
	maxAge    time.Duration
	clockSkew time.Duration
	networks  []*net.IPNet
	bearers   []string
	now       func() time.Time
}

// Config holds the origin validation settings
type Config struct {
	MaxAge    time.Duration
	ClockSkew time.Duration
	Rules     Rules

	// Now is the clock used for freshness checks; defaults to time.Now
	Now func() time.Time
}

// NewValidator creates an origin validator from the given configuration
func NewValidator(cfg Config) (*Validator, error) {
	v := &Validator{
		maxAge:    cfg.MaxAge,
		clockSkew: cfg.ClockSkew,
		bearers:   cfg.Rules.BearerIssuers,
		now:       cfg.Now,
	}
	if v.clockSkew == 0 {
		v.clockSkew = DefaultClockSkew
	}
	if v.now == nil {
		v.now = time.Now
	}

	for _, cidr := range cfg.Rules.CIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("parsing CIDR %q: %w", cidr, err)
		}
		v.networks = append(v.networks, network)
	}

	return v, nil
}

// Validate runs the freshness and allow-list checks against the envelope
func (v *Validator) Validate(env webhook.Envelope, sp webhook.SignedPayload) error {
	if err := v.ValidateFreshness(sp.ClaimedTimestamp); err != nil {
		return err
	}
	return v.ValidateSource(env.SourceAddr, env.Header(webhook.HeaderAuthorization))
}

// ValidateFreshness rejects claimed timestamps outside the configured
// window. Defends against replay of old, otherwise validly-signed payloads.
func (v *Validator) ValidateFreshness(claimed time.Time) error {
	if v.maxAge <= 0 {
		return nil
	}

	if claimed.IsZero() {
		return webhook.Freshness(fmt.Errorf("missing or malformed timestamp"))
	}

	now := v.now()
	if claimed.Before(now.Add(-v.maxAge)) {
		return webhook.Freshness(fmt.Errorf("timestamp too old: %s", now.Sub(claimed)))
	}
	if claimed.After(now.Add(v.clockSkew)) {
		return webhook.Freshness(fmt.Errorf("timestamp in the future: %s", claimed.Sub(now)))
	}

	return nil
}

// ValidateSource accepts the request if the source address falls within
// any configured CIDR range, or if the bearer credential matches a
// configured issuer. With no rules configured the check is disabled.
func (v *Validator) ValidateSource(sourceAddr, authorization string) error {
	if len(v.networks) == 0 && len(v.bearers) == 0 {
		return nil
	}

	if len(v.networks) > 0 && sourceAddr != "" {
		host := sourceAddr
		if h, _, err := net.SplitHostPort(sourceAddr); err == nil {
			host = h
		}
		if ip := net.ParseIP(host); ip != nil {
			for _, network := range v.networks {
				if network.Contains(ip) {
					return nil
				}
			}
		}
	}

	if len(v.bearers) > 0 {
		if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
			for _, issuer := range v.bearers {
				if strings.HasPrefix(token, issuer) {
					return nil
				}
			}
		}
	}

	return webhook.Origin(fmt.Errorf("source %q matched no allow-list rule", sourceAddr))
}
