package webhook_test

import (
	"testing"
	"time"

	"github.com/marcelsud/formrelay/webhook"
	"github.com/stretchr/testify/assert"
)

func TestFailureRate(t *testing.T) {
	t.Run("zero attempts yields zero", func(t *testing.T) {
		record := webhook.RetryRecord{}
		assert.Equal(t, 0.0, record.FailureRate())
	})

	t.Run("computed as percentage of total", func(t *testing.T) {
		record := webhook.RetryRecord{TotalAttempts: 4, FailedAttempts: 3}
		assert.Equal(t, 75.0, record.FailureRate())
	})

	t.Run("all failed is 100", func(t *testing.T) {
		record := webhook.RetryRecord{TotalAttempts: 5, FailedAttempts: 5}
		assert.Equal(t, 100.0, record.FailureRate())
	})
}

func TestHasExceededMaxDuration(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	record := webhook.RetryRecord{InitialFailureTime: start}

	assert.False(t, record.HasExceededMaxDuration(start.Add(9*time.Hour), 10*time.Hour))
	assert.False(t, record.HasExceededMaxDuration(start.Add(10*time.Hour), 10*time.Hour))
	assert.True(t, record.HasExceededMaxDuration(start.Add(10*time.Hour+time.Second), 10*time.Hour))
}

func TestClone(t *testing.T) {
	record := webhook.RetryRecord{
		WebhookID:    "wh-1",
		Attempts:     []webhook.Attempt{{Number: 1, Status: webhook.AttemptFailed}},
		FailureNotes: []string{"timeout"},
	}

	clone := record.Clone()
	clone.Attempts[0].Number = 99
	clone.FailureNotes[0] = "changed"

	assert.Equal(t, 1, record.Attempts[0].Number)
	assert.Equal(t, "timeout", record.FailureNotes[0])
}
