package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/formrelay/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of the audit store and payload source.
 * Uses Redis Hashes for retry record snapshots and payload storage.
 * Terminal records and stored payloads carry a TTL so Redis cleans up
 * after the audit window.
 */

const (
	recordPrefix  = "retry"   // Hash naming: retry:{webhook_id}
	payloadPrefix = "payload" // Hash naming: payload:{webhook_id}

	// defaultTTL keeps audit records and payloads around for a week
	defaultTTL = 7 * 24 * time.Hour
)

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new Redis store
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{
		client: client,
		ttl:    defaultTTL,
	}, nil
}

// SaveRecord stores a retry record snapshot as a hash with TTL
func (s *Store) SaveRecord(ctx context.Context, record webhook.RetryRecord) error {
	hashKey := fmt.Sprintf("%s:%s", recordPrefix, record.WebhookID)

	attemptsJSON, err := json.Marshal(record.Attempts)
	if err != nil {
		return fmt.Errorf("marshaling attempts: %w", err)
	}
	notesJSON, err := json.Marshal(record.FailureNotes)
	if err != nil {
		return fmt.Errorf("marshaling failure notes: %w", err)
	}

	err = s.client.HSet(ctx, hashKey, map[string]interface{}{
		"webhook_id":           record.WebhookID,
		"form_id":              record.FormID,
		"webhook_url":          record.WebhookURL,
		"max_attempts":         record.MaxAttempts,
		"expected_status":      record.ExpectedStatus,
		"status":               record.Status.String(),
		"failure_reason":       record.PermanentFailureReason.String(),
		"total_attempts":       record.TotalAttempts,
		"successful_attempts":  record.SuccessfulAttempts,
		"failed_attempts":      record.FailedAttempts,
		"attempts":             string(attemptsJSON),
		"failure_notes":        string(notesJSON),
		"initial_failure_time": record.InitialFailureTime.Unix(),
		"created_at":           record.CreatedAt.Unix(),
		"updated_at":           record.UpdatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing retry record: %w", err)
	}

	if err := s.client.Expire(ctx, hashKey, s.ttl).Err(); err != nil {
		return fmt.Errorf("setting record TTL: %w", err)
	}
	return nil
}

// GetRecord retrieves a retry record by webhook ID
func (s *Store) GetRecord(ctx context.Context, webhookID string) (webhook.RetryRecord, error) {
	hashKey := fmt.Sprintf("%s:%s", recordPrefix, webhookID)

	data, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return webhook.RetryRecord{}, fmt.Errorf("getting retry record: %w", err)
	}
	if len(data) == 0 {
		return webhook.RetryRecord{}, fmt.Errorf("retry record %s: %w", webhookID, webhook.ErrRecordNotFound)
	}

	record := webhook.RetryRecord{
		WebhookID:              data["webhook_id"],
		FormID:                 data["form_id"],
		WebhookURL:             data["webhook_url"],
		MaxAttempts:            parseInt(data["max_attempts"]),
		ExpectedStatus:         parseInt(data["expected_status"]),
		Status:                 webhook.NewRetryStatus(data["status"]),
		PermanentFailureReason: webhook.NewFailureReason(data["failure_reason"]),
		TotalAttempts:          parseInt(data["total_attempts"]),
		SuccessfulAttempts:     parseInt(data["successful_attempts"]),
		FailedAttempts:         parseInt(data["failed_attempts"]),
		InitialFailureTime:     parseUnix(data["initial_failure_time"]),
		CreatedAt:              parseUnix(data["created_at"]),
		UpdatedAt:              parseUnix(data["updated_at"]),
	}

	if attemptsStr, ok := data["attempts"]; ok && attemptsStr != "" {
		if err := json.Unmarshal([]byte(attemptsStr), &record.Attempts); err != nil {
			return webhook.RetryRecord{}, fmt.Errorf("unmarshaling attempts: %w", err)
		}
	}
	if notesStr, ok := data["failure_notes"]; ok && notesStr != "" {
		if err := json.Unmarshal([]byte(notesStr), &record.FailureNotes); err != nil {
			return webhook.RetryRecord{}, fmt.Errorf("unmarshaling failure notes: %w", err)
		}
	}

	return record, nil
}

// SavePayload stores the inbound payload and forwarded headers so the
// executor can re-deliver them on retry
func (s *Store) SavePayload(ctx context.Context, webhookID string, payload []byte, headers map[string]string) error {
	hashKey := fmt.Sprintf("%s:%s", payloadPrefix, webhookID)

	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	err = s.client.HSet(ctx, hashKey, map[string]interface{}{
		"payload": payload,
		"headers": string(headersJSON),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing payload: %w", err)
	}

	if err := s.client.Expire(ctx, hashKey, s.ttl).Err(); err != nil {
		return fmt.Errorf("setting payload TTL: %w", err)
	}
	return nil
}

// Payload retrieves the stored payload and headers for a webhook ID
func (s *Store) Payload(ctx context.Context, webhookID string) ([]byte, map[string]string, error) {
	hashKey := fmt.Sprintf("%s:%s", payloadPrefix, webhookID)

	data, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("getting payload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("payload for webhook %s not found", webhookID)
	}

	headers := make(map[string]string)
	if headersStr, ok := data["headers"]; ok && headersStr != "" {
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return nil, nil, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	return []byte(data["payload"]), headers, nil
}

// Close closes the underlying Redis connection
func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

// Client exposes the underlying client for health checks
func (s *Store) Client() *redis.Client {
	return s.client
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

var _ webhook.AuditStore = (*Store)(nil)
var _ webhook.PayloadSource = (*Store)(nil)
