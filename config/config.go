package config

import (
	"fmt"
	"time"

	"github.com/marcelsud/formrelay/webhook"
	"github.com/spf13/viper"
)

/* Config é um pacote auxiliar. Poderia ser uma lib externa*/

type Config struct {
	Port             string  `mapstructure:"PORT"`
	WebhookSecret    string  `mapstructure:"WEBHOOK_SECRET"`
	SignatureHeader  string  `mapstructure:"SIGNATURE_HEADER"`
	MaxPayloadBytes  int     `mapstructure:"MAX_PAYLOAD_BYTES"`
	TimestampTolMins int     `mapstructure:"TIMESTAMP_TOLERANCE_MINUTES"`
	ReplayWindowMins int     `mapstructure:"REPLAY_WINDOW_MINUTES"`
	OutboundRPS      float64 `mapstructure:"OUTBOUND_RPS"`
	RedisAddr        string  `mapstructure:"REDIS_ADDR"`
	RedisPassword    string  `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int     `mapstructure:"REDIS_DB"`
	DestinationsFile string  `mapstructure:"DESTINATIONS_FILE"`
	ProcessInterval  int     `mapstructure:"PROCESS_INTERVAL_SECONDS"`

	// Retry policy
	InitialRetrySeconds   int     `mapstructure:"INITIAL_RETRY_SECONDS"`
	MaxRetrySeconds       int     `mapstructure:"MAX_RETRY_SECONDS"`
	BackoffMultiplier     float64 `mapstructure:"BACKOFF_MULTIPLIER"`
	JitterPercent         float64 `mapstructure:"JITTER_PERCENT"`
	MaxRetryDurationHours int     `mapstructure:"MAX_RETRY_DURATION_HOURS"`
	MaxTotalAttempts      int     `mapstructure:"MAX_TOTAL_ATTEMPTS"`
	FailureRateThreshold  float64 `mapstructure:"FAILURE_RATE_THRESHOLD"`
	FailureRateWindowMins int     `mapstructure:"FAILURE_RATE_WINDOW_MINUTES"`
	MinimumSampleSize     int     `mapstructure:"MINIMUM_SAMPLE_SIZE"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	err := viper.ReadInConfig()
	if err != nil {
		// Missing config file is fine: env vars and defaults cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	var config Config
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// Policy assembles the validated retry policy from the configured values
func (c *Config) Policy() (webhook.Policy, error) {
	policy := webhook.DefaultPolicy()
	policy.InitialRetryInterval = time.Duration(c.InitialRetrySeconds) * time.Second
	policy.MaxRetryInterval = time.Duration(c.MaxRetrySeconds) * time.Second
	policy.BackoffMultiplier = c.BackoffMultiplier
	policy.JitterPercent = c.JitterPercent
	policy.MaxRetryDuration = time.Duration(c.MaxRetryDurationHours) * time.Hour
	policy.MaxTotalAttempts = c.MaxTotalAttempts
	policy.FailureRateDisableThreshold = c.FailureRateThreshold
	policy.FailureRateEvaluationWindow = time.Duration(c.FailureRateWindowMins) * time.Minute
	policy.MinimumSampleSize = c.MinimumSampleSize

	validated, err := webhook.NewPolicy(policy)
	if err != nil {
		return webhook.Policy{}, fmt.Errorf("validating retry policy: %w", err)
	}
	return validated, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("WEBHOOK_SECRET", "")
	viper.SetDefault("SIGNATURE_HEADER", "Typeform-Signature")
	viper.SetDefault("MAX_PAYLOAD_BYTES", 1<<20)
	viper.SetDefault("TIMESTAMP_TOLERANCE_MINUTES", 5)
	viper.SetDefault("REPLAY_WINDOW_MINUTES", 10)
	viper.SetDefault("OUTBOUND_RPS", 2.0)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("DESTINATIONS_FILE", "destinations.yaml")
	viper.SetDefault("PROCESS_INTERVAL_SECONDS", 60)

	viper.SetDefault("INITIAL_RETRY_SECONDS", 30)
	viper.SetDefault("MAX_RETRY_SECONDS", 3600)
	viper.SetDefault("BACKOFF_MULTIPLIER", 2.0)
	viper.SetDefault("JITTER_PERCENT", 20.0)
	viper.SetDefault("MAX_RETRY_DURATION_HOURS", 10)
	viper.SetDefault("MAX_TOTAL_ATTEMPTS", 10)
	viper.SetDefault("FAILURE_RATE_THRESHOLD", 90.0)
	viper.SetDefault("FAILURE_RATE_WINDOW_MINUTES", 60)
	viper.SetDefault("MINIMUM_SAMPLE_SIZE", 5)
}
