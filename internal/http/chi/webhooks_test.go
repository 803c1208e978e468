package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcelsud/webhook-engine/engine"
	"github.com/marcelsud/webhook-engine/idempotency"
	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockUseCase struct {
	mock.Mock
}

func (m *mockUseCase) Process(ctx context.Context, env webhook.Envelope) (engine.Result, error) {
	args := m.Called(ctx, env)
	return args.Get(0).(engine.Result), args.Error(1)
}

func postBody(t *testing.T, h http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	assert.NoError(t, err)
	req.Header.Set("webhook-id", "msg-1")
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPostWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("success - processed delivery returns 200", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.AnythingOfType("webhook.Envelope")).Return(engine.Result{
			EventType: "bounced",
			Status:    webhook.Succeeded,
			TraceID:   "trace-1",
		}, nil)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{"type":"bounced"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		var response webhookResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.WebhookID)
		assert.Equal(t, "bounced", response.EventType)
		assert.Equal(t, "succeeded", response.Status)
		assert.Equal(t, "trace-1", response.TraceID)
		assert.False(t, response.Duplicate)
	})

	t.Run("success - duplicate delivery returns 200 with the duplicate flag", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(engine.Result{
			EventType:    "bounced",
			Status:       webhook.Duplicate,
			WasDuplicate: true,
		}, nil)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{"type":"bounced"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		var response webhookResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Duplicate)
	})

	t.Run("success - envelope carries the request headers and source", func(t *testing.T) {
		s := new(mockUseCase)
		var captured webhook.Envelope
		s.On("Process", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			captured = args.Get(1).(webhook.Envelope)
		}).Return(engine.Result{Status: webhook.Succeeded}, nil)

		postBody(t, Handlers(ctx, s, nil), []byte(`{"type":"bounced"}`))

		assert.Equal(t, "msg-1", captured.Header(webhook.HeaderID))
		assert.NotEmpty(t, captured.SourceAddr)
		assert.Equal(t, []byte(`{"type":"bounced"}`), captured.RawBody)
	})

	t.Run("error - authentication failure returns 401", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(
			engine.Result{Status: webhook.Rejected, TraceID: "trace-1"},
			webhook.Authentication(errors.New("signature mismatch")),
		)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var response errorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Error, "signature mismatch")
		assert.Equal(t, "trace-1", response.TraceID)
	})

	t.Run("error - stale timestamp returns 403", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(
			engine.Result{Status: webhook.Rejected},
			webhook.Freshness(errors.New("timestamp too old")),
		)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{}`))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("error - disallowed origin returns 403", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(
			engine.Result{Status: webhook.Rejected},
			webhook.Origin(errors.New("source not allowed")),
		)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{}`))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("error - malformed payload returns 400", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(
			engine.Result{Status: webhook.Rejected},
			webhook.Validation(errors.New("missing type")),
		)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("error - processing failure returns 500", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(
			engine.Result{Status: webhook.DeadLettered, SentToDLQ: true},
			webhook.Transient(errors.New("downstream unavailable")),
		)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{"type":"bounced"}`))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("error - replay of a failed delivery returns 422", func(t *testing.T) {
		s := new(mockUseCase)
		s.On("Process", mock.Anything, mock.Anything).Return(
			engine.Result{Status: webhook.Failed},
			idempotency.ErrPreviouslyFailed,
		)

		w := postBody(t, Handlers(ctx, s, nil), []byte(`{"type":"bounced"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestHealth(t *testing.T) {
	s := new(mockUseCase)
	h := Handlers(context.Background(), s, nil)

	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	assert.NoError(t, err)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}
