package webhook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/formrelay/webhook"
)

func TestMemoryPayloadStore(t *testing.T) {
	ctx := context.Background()

	t.Run("success - saved payload round-trips", func(t *testing.T) {
		store := webhook.NewMemoryPayloadStore()
		headers := map[string]string{"Content-Type": "application/json"}
		require.NoError(t, store.SavePayload(ctx, "wh-1", []byte(`{"answer":42}`), headers))

		body, gotHeaders, err := store.Payload(ctx, "wh-1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"answer":42}`), body)
		assert.Equal(t, headers, gotHeaders)
	})

	t.Run("success - stored data is isolated from caller slices", func(t *testing.T) {
		store := webhook.NewMemoryPayloadStore()
		payload := []byte(`{"a":1}`)
		headers := map[string]string{"X-Request-Id": "req-1"}
		require.NoError(t, store.SavePayload(ctx, "wh-1", payload, headers))

		payload[2] = 'z'
		headers["X-Request-Id"] = "tampered"

		body, gotHeaders, err := store.Payload(ctx, "wh-1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), body)
		assert.Equal(t, "req-1", gotHeaders["X-Request-Id"])
	})

	t.Run("success - later save replaces the payload", func(t *testing.T) {
		store := webhook.NewMemoryPayloadStore()
		require.NoError(t, store.SavePayload(ctx, "wh-1", []byte(`v1`), nil))
		require.NoError(t, store.SavePayload(ctx, "wh-1", []byte(`v2`), nil))

		body, _, err := store.Payload(ctx, "wh-1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`v2`), body)
	})

	t.Run("error - unknown webhook ID", func(t *testing.T) {
		store := webhook.NewMemoryPayloadStore()
		_, _, err := store.Payload(ctx, "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}
