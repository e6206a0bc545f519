package webhook

import (
	"context"
	"fmt"
	"sync"
)

/* MemoryPayloadStore keeps accepted payloads in process memory. It is
 * the degraded-mode fallback when Redis is unreachable at startup:
 * deliveries and retries keep working, at the cost of losing stored
 * payloads on restart.
 */
type MemoryPayloadStore struct {
	mu       sync.Mutex
	payloads map[string]storedPayload
}

type storedPayload struct {
	body    []byte
	headers map[string]string
}

// NewMemoryPayloadStore creates an empty in-memory payload store
func NewMemoryPayloadStore() *MemoryPayloadStore {
	return &MemoryPayloadStore{
		payloads: make(map[string]storedPayload),
	}
}

// SavePayload stores a copy of the payload and headers for a webhook ID
func (s *MemoryPayloadStore) SavePayload(_ context.Context, webhookID string, payload []byte, headers map[string]string) error {
	body := make([]byte, len(payload))
	copy(body, payload)
	copied := make(map[string]string, len(headers))
	for key, value := range headers {
		copied[key] = value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[webhookID] = storedPayload{body: body, headers: copied}
	return nil
}

// Payload returns a copy of the stored payload and headers
func (s *MemoryPayloadStore) Payload(_ context.Context, webhookID string) ([]byte, map[string]string, error) {
	s.mu.Lock()
	stored, ok := s.payloads[webhookID]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("payload for webhook %s not found", webhookID)
	}

	body := make([]byte, len(stored.body))
	copy(body, stored.body)
	headers := make(map[string]string, len(stored.headers))
	for key, value := range stored.headers {
		headers[key] = value
	}
	return body, headers, nil
}

var _ PayloadSource = (*MemoryPayloadStore)(nil)
