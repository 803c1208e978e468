package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
)

const (
	// SecretPrefix is the prefix for symmetric signing secrets
	SecretPrefix = "whsec_"

	// Version is the version identifier for symmetric signatures
	Version = "v1"

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64
)

// Secret represents a webhook signing secret
type Secret struct {
	raw    []byte
	base64 string
}

// GenerateSecret creates a new cryptographically secure signing secret
// between MinSecretBytes and MaxSecretBytes in size.
func GenerateSecret(size int) (Secret, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return Secret{}, fmt.Errorf("generating random bytes: %w", err)
	}

	return Secret{
		raw:    bytes,
		base64: SecretPrefix + base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// ParseSecret parses a base64-encoded secret with the whsec_ prefix
func ParseSecret(encoded string) (Secret, error) {
	if !strings.HasPrefix(encoded, SecretPrefix) {
		return Secret{}, fmt.Errorf("secret must start with %s prefix", SecretPrefix)
	}

	b64 := strings.TrimPrefix(encoded, SecretPrefix)
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Secret{}, fmt.Errorf("decoding base64 secret: %w", err)
	}

	if len(raw) < MinSecretBytes || len(raw) > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	return Secret{
		raw:    raw,
		base64: encoded,
	}, nil
}

// String returns the base64-encoded secret with prefix
func (s Secret) String() string {
	return s.base64
}

// Bytes returns the raw secret bytes
func (s Secret) Bytes() []byte {
	return s.raw
}

// Sign computes the keyed digest for the given message.
// The signed content is: {msgID}.{unix timestamp}.{payload}
func Sign(secret Secret, msgID string, timestamp time.Time, payload []byte) string {
	signedContent := fmt.Sprintf("%s.%s.%s", msgID, strconv.FormatInt(timestamp.Unix(), 10), payload)

	mac := hmac.New(sha256.New, secret.Bytes())
	mac.Write([]byte(signedContent))

	return Version + "," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

/* Validator verifies message authenticity against one or more secrets
 * Multiple secrets support rotation: a payload signed with either the old
 * or the new secret is accepted during the rotation window
 * Pure function of its inputs; safe for concurrent use
 */
type Validator struct {
	secrets []Secret
}

// NewValidator creates a signature validator over the given secrets
func NewValidator(secrets ...Secret) (*Validator, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("at least one secret is required")
	}
	return &Validator{secrets: secrets}, nil
}

// Validate checks the signature header of a signed payload.
// Malformed headers are invalid, never an internal error: the returned
// error is always an authentication rejection in that case.
func (v *Validator) Validate(sp webhook.SignedPayload) error {
	if sp.Signature == "" {
		return webhook.Authentication(fmt.Errorf("missing signature header"))
	}
	if sp.MessageID == "" || strings.Contains(sp.MessageID, ".") {
		return webhook.Authentication(fmt.Errorf("missing or malformed message id"))
	}

	/* The header may carry several space-delimited signatures
	 * (one per secret the sender currently holds): "v1,sig1 v1,sig2"
	 * Accept if any signature matches any configured secret
	 */
	for _, part := range strings.Fields(sp.Signature) {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != Version {
			continue
		}

		provided, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}

		for _, secret := range v.secrets {
			expected := Sign(secret, sp.MessageID, sp.ClaimedTimestamp, sp.Body)
			_, expectedSig, _ := strings.Cut(expected, ",")
			want, err := base64.StdEncoding.DecodeString(expectedSig)
			if err != nil {
				continue
			}

			// Constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare(provided, want) == 1 {
				return nil
			}
		}
	}

	return webhook.Authentication(fmt.Errorf("signature mismatch"))
}
