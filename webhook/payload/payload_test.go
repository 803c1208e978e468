package payload

import (
	"testing"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("success - valid payload", func(t *testing.T) {
		body := []byte(`{"type":"bounced","timestamp":"2024-01-01T12:00:00Z","data":{"recipient":"a@b.c"}}`)

		p, err := Parse(body)
		require.NoError(t, err)
		assert.Equal(t, "bounced", p.Type)
		assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), p.Timestamp)
		assert.JSONEq(t, `{"recipient":"a@b.c"}`, string(p.Data))
	})

	t.Run("success - hierarchical type", func(t *testing.T) {
		body := []byte(`{"type":"email.delivery.delayed","timestamp":"2024-01-01T12:00:00Z","data":{}}`)

		p, err := Parse(body)
		require.NoError(t, err)
		assert.Equal(t, "email.delivery.delayed", p.Type)
	})

	t.Run("success - sub-second timestamp precision", func(t *testing.T) {
		body := []byte(`{"type":"delivered","timestamp":"2024-01-01T12:00:00.123456Z","data":{"x":1}}`)

		p, err := Parse(body)
		require.NoError(t, err)
		assert.Equal(t, 123456000, p.Timestamp.Nanosecond())
	})

	t.Run("error - not JSON", func(t *testing.T) {
		_, err := Parse([]byte("not json at all"))
		require.Error(t, err)
		assert.Equal(t, webhook.KindValidation, webhook.KindOf(err))
	})

	t.Run("error - missing type", func(t *testing.T) {
		_, err := Parse([]byte(`{"timestamp":"2024-01-01T12:00:00Z","data":{"x":1}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type is required")
	})

	t.Run("error - invalid type characters", func(t *testing.T) {
		_, err := Parse([]byte(`{"type":"has spaces!","timestamp":"2024-01-01T12:00:00Z","data":{"x":1}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hierarchical")
	})

	t.Run("error - missing timestamp", func(t *testing.T) {
		_, err := Parse([]byte(`{"type":"delivered","data":{"x":1}}`))
		require.Error(t, err)
		assert.Equal(t, webhook.KindValidation, webhook.KindOf(err))
	})

	t.Run("error - malformed timestamp", func(t *testing.T) {
		_, err := Parse([]byte(`{"type":"delivered","timestamp":"yesterday","data":{"x":1}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing timestamp")
	})

	t.Run("error - missing data", func(t *testing.T) {
		_, err := Parse([]byte(`{"type":"delivered","timestamp":"2024-01-01T12:00:00Z"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data is required")
	})
}
