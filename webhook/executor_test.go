package webhook_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcelsud/formrelay/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticPayloadSource serves the same payload for every webhook ID
type staticPayloadSource struct {
	payload []byte
	headers map[string]string
	err     error
}

func (s staticPayloadSource) Payload(context.Context, string) ([]byte, map[string]string, error) {
	return s.payload, s.headers, s.err
}

// countingAcquirer records acquisitions, optionally failing
type countingAcquirer struct {
	calls int
	err   error
}

func (a *countingAcquirer) Acquire(context.Context) error {
	a.calls++
	return a.err
}

func TestHTTPExecutorExecute(t *testing.T) {
	ctx := context.Background()
	delivery := webhook.Delivery{
		WebhookID:     "wh-1",
		FormID:        "contact-form",
		AttemptNumber: 2,
		CorrelationID: "corr-1",
	}

	t.Run("success - posts the stored payload with delivery headers", func(t *testing.T) {
		var gotBody string
		var gotHeaders http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"ok":true}`)
		}))
		defer server.Close()

		source := staticPayloadSource{
			payload: []byte(`{"event_type":"form_response"}`),
			headers: map[string]string{"User-Agent": "Typeform Webhooks"},
		}
		executor := webhook.NewHTTPExecutor(nil, source)

		d := delivery
		d.WebhookURL = server.URL
		result, err := executor.Execute(ctx, d)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, `{"ok":true}`, result.ResponseBody)
		assert.Equal(t, `{"event_type":"form_response"}`, gotBody)
		assert.Equal(t, "corr-1", gotHeaders.Get("X-Correlation-ID"))
		assert.Equal(t, "2", gotHeaders.Get("X-Attempt-Number"))
		assert.Equal(t, "Typeform Webhooks", gotHeaders.Get("User-Agent"))
	})

	t.Run("non-2xx response is a failed HTTP status result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		executor := webhook.NewHTTPExecutor(nil, staticPayloadSource{payload: []byte(`{}`)})

		d := delivery
		d.WebhookURL = server.URL
		result, err := executor.Execute(ctx, d)

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
		assert.Equal(t, webhook.FailureHTTPStatus, result.Kind)
		assert.Contains(t, result.ErrorMessage, "status 503")
	})

	t.Run("expected status pins the exact success code", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		executor := webhook.NewHTTPExecutor(nil, staticPayloadSource{payload: []byte(`{}`)})

		d := delivery
		d.WebhookURL = server.URL
		d.ExpectedStatus = 201
		result, err := executor.Execute(ctx, d)

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, webhook.FailureHTTPStatus, result.Kind)
		assert.Contains(t, result.ErrorMessage, "expected 201")
	})

	t.Run("expected status match is a success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		executor := webhook.NewHTTPExecutor(nil, staticPayloadSource{payload: []byte(`{}`)})

		d := delivery
		d.WebhookURL = server.URL
		d.ExpectedStatus = 201
		result, err := executor.Execute(ctx, d)

		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("error - unreachable destination is a network failure", func(t *testing.T) {
		executor := webhook.NewHTTPExecutor(nil, staticPayloadSource{payload: []byte(`{}`)})

		d := delivery
		d.WebhookURL = "http://127.0.0.1:1"
		result, err := executor.Execute(ctx, d)

		require.Error(t, err)
		assert.Equal(t, webhook.FailureNetwork, result.Kind)
	})

	t.Run("error - payload cannot be resolved", func(t *testing.T) {
		executor := webhook.NewHTTPExecutor(nil, staticPayloadSource{err: fmt.Errorf("payload not found")})

		d := delivery
		d.WebhookURL = "http://example.com"
		_, err := executor.Execute(ctx, d)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolving payload")
	})

	t.Run("acquires the rate limiter before delivering", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		acquirer := &countingAcquirer{}
		executor := webhook.NewHTTPExecutor(acquirer, staticPayloadSource{payload: []byte(`{}`)})

		d := delivery
		d.WebhookURL = server.URL
		_, err := executor.Execute(ctx, d)

		require.NoError(t, err)
		assert.Equal(t, 1, acquirer.calls)
	})

	t.Run("error - rate limiter rejection aborts the delivery", func(t *testing.T) {
		acquirer := &countingAcquirer{err: fmt.Errorf("context cancelled")}
		executor := webhook.NewHTTPExecutor(acquirer, staticPayloadSource{payload: []byte(`{}`)})

		d := delivery
		d.WebhookURL = "http://example.com"
		_, err := executor.Execute(ctx, d)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "acquiring rate limit")
	})
}
