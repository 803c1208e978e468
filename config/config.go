package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting of the ingestion engine.
// Values come from a .env file or the environment; zero durations and
// counts fall back to the package defaults of each component.
type Config struct {
	Port string `mapstructure:"PORT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SigningSecrets is a comma-separated list of whsec_ secrets;
	// more than one entry enables rotation
	SigningSecrets []string `mapstructure:"SIGNING_SECRETS"`

	// AllowListPath points to the YAML origin allow-list; empty
	// disables source filtering
	AllowListPath string        `mapstructure:"ALLOW_LIST_PATH"`
	MaxPayloadAge time.Duration `mapstructure:"MAX_PAYLOAD_AGE"`
	ClockSkew     time.Duration `mapstructure:"CLOCK_SKEW"`

	ResultTTL time.Duration `mapstructure:"RESULT_TTL"`
	OwnerWait time.Duration `mapstructure:"OWNER_WAIT"`

	MaxRetries       int           `mapstructure:"MAX_RETRIES"`
	InitialDelay     time.Duration `mapstructure:"INITIAL_DELAY"`
	MaxDelay         time.Duration `mapstructure:"MAX_DELAY"`
	SendToDLQ        bool          `mapstructure:"SEND_TO_DLQ"`
	FailureThreshold int           `mapstructure:"FAILURE_THRESHOLD"`
	RecoveryTimeout  time.Duration `mapstructure:"RECOVERY_TIMEOUT"`

	RateAlertThreshold      int64         `mapstructure:"RATE_ALERT_THRESHOLD"`
	ErrorRateAlertThreshold float64       `mapstructure:"ERROR_RATE_ALERT_THRESHOLD"`
	AlertCooldown           time.Duration `mapstructure:"ALERT_COOLDOWN"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var config Config
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if len(config.SigningSecrets) == 0 {
		return nil, fmt.Errorf("SIGNING_SECRETS is required")
	}
	return &config, nil
}
