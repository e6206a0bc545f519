package routes

import (
	"fmt"
	"net/url"
	"strings"
)

/* Destination represents a webhook delivery target configuration
 * Maps form_id to the destination URL with per-destination overrides
 */
type Destination struct {
	FormID           string
	WebhookURL       string
	MaxAttempts      int  // 0 means use the global policy value
	ExpectedStatus   int  // Expected HTTP status code (default: 200)
	TimestampChecked bool // Whether inbound events for this form enforce the timestamp tolerance
}

// Validate checks if the destination configuration is valid
func (d *Destination) Validate() error {
	if d.FormID == "" {
		return fmt.Errorf("form_id cannot be empty")
	}
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook_url cannot be empty for form %s", d.FormID)
	}
	parsed, err := url.Parse(d.WebhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook_url for form %s: %w", d.FormID, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook_url for form %s must be http or https, got %q", d.FormID, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook_url for form %s has no host", d.FormID)
	}
	if d.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts cannot be negative for form %s", d.FormID)
	}
	if d.ExpectedStatus != 0 && (d.ExpectedStatus < 200 || d.ExpectedStatus > 299) {
		return fmt.Errorf("expected_status for form %s must be a 2xx code, got %d", d.FormID, d.ExpectedStatus)
	}
	return nil
}

// Normalize trims whitespace from identifying fields
func (d *Destination) Normalize() {
	d.FormID = strings.TrimSpace(d.FormID)
	d.WebhookURL = strings.TrimSpace(d.WebhookURL)
}
