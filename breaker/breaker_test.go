package breaker_test

import (
	"testing"
	"time"

	"github.com/marcelsud/webhook-engine/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	newRegistry := func() *breaker.Registry {
		return breaker.NewRegistry(breaker.Settings{
			FailureThreshold: 3,
			RecoveryTimeout:  5 * time.Second,
			Now:              clock,
		})
	}

	t.Run("closed circuit passes calls through", func(t *testing.T) {
		r := newRegistry()
		require.NoError(t, r.Allow("email-processor"))
		assert.Equal(t, breaker.Closed, r.State("email-processor"))
	})

	t.Run("opens after exactly threshold consecutive failures", func(t *testing.T) {
		r := newRegistry()

		r.ReportFailure("email-processor")
		r.ReportFailure("email-processor")
		assert.Equal(t, breaker.Closed, r.State("email-processor"))
		require.NoError(t, r.Allow("email-processor"))

		r.ReportFailure("email-processor")
		assert.Equal(t, breaker.Open, r.State("email-processor"))
		require.ErrorIs(t, r.Allow("email-processor"), breaker.ErrOpen)
	})

	t.Run("success resets the consecutive failure count", func(t *testing.T) {
		r := newRegistry()

		r.ReportFailure("email-processor")
		r.ReportFailure("email-processor")
		r.ReportSuccess("email-processor")
		r.ReportFailure("email-processor")
		r.ReportFailure("email-processor")

		assert.Equal(t, breaker.Closed, r.State("email-processor"))
	})

	t.Run("open moves to half-open after the recovery timeout", func(t *testing.T) {
		r := newRegistry()
		for i := 0; i < 3; i++ {
			r.ReportFailure("email-processor")
		}
		require.ErrorIs(t, r.Allow("email-processor"), breaker.ErrOpen)

		now = now.Add(6 * time.Second)
		require.NoError(t, r.Allow("email-processor"))
		assert.Equal(t, breaker.HalfOpen, r.State("email-processor"))
	})

	t.Run("half-open admits exactly one trial call", func(t *testing.T) {
		r := newRegistry()
		for i := 0; i < 3; i++ {
			r.ReportFailure("email-processor")
		}
		now = now.Add(6 * time.Second)

		require.NoError(t, r.Allow("email-processor"))
		require.ErrorIs(t, r.Allow("email-processor"), breaker.ErrOpen)
	})

	t.Run("half-open closes on trial success", func(t *testing.T) {
		r := newRegistry()
		for i := 0; i < 3; i++ {
			r.ReportFailure("email-processor")
		}
		now = now.Add(6 * time.Second)
		require.NoError(t, r.Allow("email-processor"))

		r.ReportSuccess("email-processor")
		assert.Equal(t, breaker.Closed, r.State("email-processor"))
		require.NoError(t, r.Allow("email-processor"))
	})

	t.Run("half-open reopens on trial failure", func(t *testing.T) {
		r := newRegistry()
		for i := 0; i < 3; i++ {
			r.ReportFailure("email-processor")
		}
		now = now.Add(6 * time.Second)
		require.NoError(t, r.Allow("email-processor"))

		r.ReportFailure("email-processor")
		assert.Equal(t, breaker.Open, r.State("email-processor"))

		// The reopened circuit starts a fresh recovery window
		now = now.Add(3 * time.Second)
		require.ErrorIs(t, r.Allow("email-processor"), breaker.ErrOpen)
		now = now.Add(3 * time.Second)
		require.NoError(t, r.Allow("email-processor"))
	})

	t.Run("circuits are independent per downstream", func(t *testing.T) {
		r := newRegistry()
		for i := 0; i < 3; i++ {
			r.ReportFailure("email-processor")
		}

		require.ErrorIs(t, r.Allow("email-processor"), breaker.ErrOpen)
		require.NoError(t, r.Allow("audit-log"))
	})

	t.Run("states snapshot covers every tracked circuit", func(t *testing.T) {
		r := newRegistry()
		require.NoError(t, r.Allow("email-processor"))
		for i := 0; i < 3; i++ {
			r.ReportFailure("audit-log")
		}

		states := r.States()
		assert.Equal(t, breaker.Closed, states["email-processor"])
		assert.Equal(t, breaker.Open, states["audit-log"])
	})
}
