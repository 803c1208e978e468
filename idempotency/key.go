package idempotency

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"
)

// Key derives the deterministic dedup key for an event from its stable
// identity. Each field is length-prefixed before hashing so that two
// physically distinct events can never produce the same digest.
func Key(eventType, providerMessageID string, timestamp time.Time) string {
	h := sha256.New()

	for _, field := range []string{
		eventType,
		providerMessageID,
		strconv.FormatInt(timestamp.Unix(), 10),
	} {
		var prefix [8]byte
		binary.BigEndian.PutUint64(prefix[:], uint64(len(field)))
		h.Write(prefix[:])
		h.Write([]byte(field))
	}

	return hex.EncodeToString(h.Sum(nil))
}
