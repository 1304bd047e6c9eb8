package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	AMQPURL       string `yaml:"amqpURL"`
	PushExchange  string `yaml:"pushExchange"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	PlayPackageName string `yaml:"playPackageName"`
	PlayBaseURL     string `yaml:"playBaseURL"`
	PlayAuthToken   string `yaml:"playAuthToken"`

	ReminderTime string `yaml:"reminderTime"`
	Timezone     string `yaml:"timezone"`

	SubmitRateLimitPerMinute   int `yaml:"submitRateLimitPerMinute"`
	ReactionRateLimitPerMinute int `yaml:"reactionRateLimitPerMinute"`
	ReportRateLimitPerMinute   int `yaml:"reportRateLimitPerMinute"`
	PurchaseRateLimitPerMinute int `yaml:"purchaseRateLimitPerMinute"`

	EventConcurrency    int      `yaml:"eventConcurrency"`
	ExtraBannedPatterns []string `yaml:"extraBannedPatterns"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("CONFESSLY_AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("CONFESSLY_PLAY_PACKAGE_NAME"); v != "" {
		cfg.PlayPackageName = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONFESSLY_PLAY_AUTH_TOKEN"); v != "" {
		cfg.PlayAuthToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONFESSLY_REMINDER_TIME"); v != "" {
		cfg.ReminderTime = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONFESSLY_TIMEZONE"); v != "" {
		cfg.Timezone = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONFESSLY_SUBMIT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SubmitRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CONFESSLY_REACTION_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReactionRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CONFESSLY_REPORT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReportRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CONFESSLY_PURCHASE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PurchaseRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for events and rate limiting")
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or CONFESSLY_AUTH_JWKS_URL)")
	}
	if strings.TrimSpace(cfg.PlayPackageName) == "" {
		return errors.New("config: playPackageName is required for purchase verification")
	}
	if cfg.SubmitRateLimitPerMinute < 0 || cfg.ReactionRateLimitPerMinute < 0 || cfg.ReportRateLimitPerMinute < 0 || cfg.PurchaseRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.ReminderTime != "" {
		if _, _, err := ParseReminderTime(cfg.ReminderTime); err != nil {
			return err
		}
	}
	return nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// ParseReminderTime parses an "HH:MM" wall-clock time. Empty input means
// the default reminder slot of 20:00.
func ParseReminderTime(value string) (hour, minute int, err error) {
	if strings.TrimSpace(value) == "" {
		return 20, 0, nil
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid reminderTime %q: want HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid reminderTime %q: want HH:MM", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid reminderTime %q: want HH:MM", value)
	}
	return hour, minute, nil
}
