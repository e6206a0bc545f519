package routes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Loader manages destination configuration from destinations.yaml
 * Provides in-memory lookup for fast access
 */

// Config represents the structure of destinations.yaml
type Config struct {
	Destinations []DestinationConfig `yaml:"destinations"`
}

// DestinationConfig represents a single destination in the YAML file
type DestinationConfig struct {
	FormID           string `yaml:"form_id"`
	WebhookURL       string `yaml:"webhook_url"`
	MaxAttempts      int    `yaml:"max_attempts"`      // Optional: override global policy
	ExpectedStatus   int    `yaml:"expected_status"`   // Default: 200
	TimestampChecked *bool  `yaml:"timestamp_checked"` // Default: true
}

// Loader holds the loaded destinations
type Loader struct {
	destinations map[string]*Destination
}

// NewLoader creates a new destination loader
func NewLoader() *Loader {
	return &Loader{
		destinations: make(map[string]*Destination),
	}
}

// Load reads and parses the destinations.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading destinations file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing destinations YAML: %w", err)
	}

	// Convert and validate destinations
	for _, dc := range config.Destinations {
		// Set default expected status to 200 if not specified
		expectedStatus := dc.ExpectedStatus
		if expectedStatus == 0 {
			expectedStatus = 200
		}

		timestampChecked := true
		if dc.TimestampChecked != nil {
			timestampChecked = *dc.TimestampChecked
		}

		destination := &Destination{
			FormID:           dc.FormID,
			WebhookURL:       dc.WebhookURL,
			MaxAttempts:      dc.MaxAttempts,
			ExpectedStatus:   expectedStatus,
			TimestampChecked: timestampChecked,
		}
		destination.Normalize()

		if err := destination.Validate(); err != nil {
			return fmt.Errorf("validating destination: %w", err)
		}

		l.destinations[destination.FormID] = destination
	}

	return nil
}

// Get retrieves a destination by its form ID
func (l *Loader) Get(formID string) (*Destination, error) {
	destination, exists := l.destinations[formID]
	if !exists {
		return nil, fmt.Errorf("destination not found: %s", formID)
	}
	return destination, nil
}

// List returns all loaded destinations
func (l *Loader) List() []*Destination {
	destinations := make([]*Destination, 0, len(l.destinations))
	for _, destination := range l.destinations {
		destinations = append(destinations, destination)
	}
	return destinations
}

// Exists checks if a form ID exists
func (l *Loader) Exists(formID string) bool {
	_, exists := l.destinations[formID]
	return exists
}
