// Package config provides configuration loading and validation for the
// DWN node. It uses koanf to merge environment variables with optional
// file overrides, the same stack and precedence order the teacher's own
// config package uses.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every configuration value the node needs to run.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// DWN tuning, spec §6's three named options.
	MaxDataSizeInlined             int `koanf:"max_data_size_inlined"`
	EventSubscriptionQueueDepth    int `koanf:"event_subscription_queue_depth"`
	GrantRevocationLookupBatchSize int `koanf:"grant_revocation_lookup_batch_size"`

	// MessageStore/EventLog backing store.
	DatabaseURL string `koanf:"database_url"`

	// DataStore (S3-compatible object storage for data above
	// maxDataSizeInlined).
	S3Bucket          string `koanf:"s3_bucket"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`

	// Redis (optional: grant revocation cache and its readiness check).
	RedisURL string `koanf:"redis_url"`

	// Tracing (OpenTelemetry)
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporterType string  `koanf:"tracing_exporter_type"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSampleRate   float64 `koanf:"tracing_sample_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrIncompleteS3Config = errors.New("S3_BUCKET, S3_ENDPOINT, S3_ACCESS_KEY_ID, and S3_SECRET_ACCESS_KEY must all be set together")
)

// Default values for non-secret configuration.
const (
	DefaultPort                            = 8080
	DefaultEnv                             = "development"
	DefaultMaxDataSizeInlined              = 30_000
	DefaultEventSubscriptionQueueDepth     = 256
	DefaultGrantRevocationLookupBatchSize  = 64
	DefaultTracingEnabled                  = false
	DefaultTracingExporterType             = "otlp-http"
	DefaultTracingSampleRate               = 0.1
	DefaultTracingInsecure                 = false
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). If a config file path is provided and cannot be loaded, an
// error is returned on its own.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"DWN_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	maxDataSizeInlined, err := getEnvIntOrDefault("MAX_DATA_SIZE_INLINED", k.Int("max_data_size_inlined"), DefaultMaxDataSizeInlined)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	eventQueueDepth, err := getEnvIntOrDefault("EVENT_SUBSCRIPTION_QUEUE_DEPTH", k.Int("event_subscription_queue_depth"), DefaultEventSubscriptionQueueDepth)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	grantBatchSize, err := getEnvIntOrDefault("GRANT_REVOCATION_LOOKUP_BATCH_SIZE", k.Int("grant_revocation_lookup_batch_size"), DefaultGrantRevocationLookupBatchSize)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	tracingEnabled := DefaultTracingEnabled
	if k.Exists("tracing_enabled") {
		tracingEnabled = k.Bool("tracing_enabled")
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		tracingEnabled = parseBoolLoose(val, tracingEnabled)
	}

	tracingSampleRate := DefaultTracingSampleRate
	if k.Exists("tracing_sample_rate") {
		tracingSampleRate = k.Float64("tracing_sample_rate")
	}
	if val := os.Getenv("TRACING_SAMPLE_RATE"); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("TRACING_SAMPLE_RATE must be a valid float: %w", err))
		} else {
			tracingSampleRate = parsed
		}
	}

	tracingInsecure := DefaultTracingInsecure
	if k.Exists("tracing_insecure") {
		tracingInsecure = k.Bool("tracing_insecure")
	}
	if val := os.Getenv("TRACING_INSECURE"); val != "" {
		tracingInsecure = parseBoolLoose(val, tracingInsecure)
	}

	cfg := &Config{
		Port:                           port,
		Env:                            getEnvOrDefaultMulti([]string{"DWN_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		MaxDataSizeInlined:             maxDataSizeInlined,
		EventSubscriptionQueueDepth:    eventQueueDepth,
		GrantRevocationLookupBatchSize: grantBatchSize,
		DatabaseURL:                    getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		S3Bucket:                       getEnvOrKoanf("S3_BUCKET", k, "s3_bucket"),
		S3Endpoint:                     getEnvOrKoanf("S3_ENDPOINT", k, "s3_endpoint"),
		S3AccessKeyID:                  getEnvOrKoanf("S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey:              getEnvOrKoanf("S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		RedisURL:                       getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		TracingEnabled:                 tracingEnabled,
		TracingExporterType:            getEnvOrDefault("TRACING_EXPORTER_TYPE", k.String("tracing_exporter_type"), DefaultTracingExporterType),
		TracingOTLPEndpoint:            getEnvOrKoanf("TRACING_OTLP_ENDPOINT", k, "tracing_otlp_endpoint"),
		TracingSampleRate:              tracingSampleRate,
		TracingInsecure:                tracingInsecure,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

func parseBoolLoose(val string, fallback bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the env var parsed as int if set, otherwise
// the koanf value, or default. Errors if the env var is set but cannot
// be parsed.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}

	s3Fields := []string{c.S3Bucket, c.S3Endpoint, c.S3AccessKeyID, c.S3SecretAccessKey}
	anySet, allSet := false, true
	for _, f := range s3Fields {
		if f != "" {
			anySet = true
		} else {
			allSet = false
		}
	}
	if anySet && !allSet {
		errs = append(errs, ErrIncompleteS3Config)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for
// logging, with every secret masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                               fmt.Sprintf("%d", c.Port),
		"env":                                c.Env,
		"max_data_size_inlined":              fmt.Sprintf("%d", c.MaxDataSizeInlined),
		"event_subscription_queue_depth":     fmt.Sprintf("%d", c.EventSubscriptionQueueDepth),
		"grant_revocation_lookup_batch_size": fmt.Sprintf("%d", c.GrantRevocationLookupBatchSize),
		"database_url":                       maskDatabaseURL(c.DatabaseURL),
		"s3_bucket":                          c.S3Bucket,
		"s3_endpoint":                        c.S3Endpoint,
		"s3_access_key_id":                   maskSecret(c.S3AccessKeyID),
		"s3_secret_access_key":               maskSecret(c.S3SecretAccessKey),
		"redis_url":                          maskDatabaseURL(c.RedisURL),
		"tracing_enabled":                    fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_exporter_type":              c.TracingExporterType,
		"tracing_otlp_endpoint":              c.TracingOTLPEndpoint,
		"tracing_sample_rate":                fmt.Sprintf("%.2f", c.TracingSampleRate),
		"tracing_insecure":                   fmt.Sprintf("%t", c.TracingInsecure),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters
// followed by ****. If the secret is shorter than 8 characters, it's
// fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL. Supports both
// postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
