/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when the environment describes an unusable setup.
var ErrInvalidConfig = errors.New("invalid configuration")

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// SoundSource selects where sound files are read from.
type SoundSource string

const (
	SoundSourceFS SoundSource = "fs"
	SoundSourceS3 SoundSource = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Sound source
	SoundSource  SoundSource
	SoundsDir    string
	AutoRegister bool // watch SoundsDir and register new files
	AutoStart    bool // start the scheduler when the daemon boots

	// S3 sound source
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string // For S3-compatible services (MinIO etc.)
	S3UsePathStyle    bool

	// Audio output
	SampleRate     int
	BufferDuration time.Duration

	// Scheduler tuning
	SettleDelay  time.Duration
	MaxJitter    time.Duration
	RepeatWeight float64

	// Cache
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	StatusHistorySize int
	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SOUNDTRIGGER_ENV", "ST_ENV"}, "production"),
		LogLevel:    getEnvAny([]string{"SOUNDTRIGGER_LOG_LEVEL", "ST_LOG_LEVEL"}, ""),
		HTTPBind:    getEnvAny([]string{"SOUNDTRIGGER_HTTP_BIND", "ST_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"SOUNDTRIGGER_HTTP_PORT", "ST_HTTP_PORT"}, 8090),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"SOUNDTRIGGER_DB_BACKEND", "ST_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"SOUNDTRIGGER_DB_DSN", "ST_DB_DSN"}, "soundtrigger.db"),
		MetricsBind: getEnvAny([]string{"SOUNDTRIGGER_METRICS_BIND", "ST_METRICS_BIND"}, "127.0.0.1:9095"),

		SoundSource:  SoundSource(getEnvAny([]string{"SOUNDTRIGGER_SOUND_SOURCE", "ST_SOUND_SOURCE"}, string(SoundSourceFS))),
		SoundsDir:    getEnvAny([]string{"SOUNDTRIGGER_SOUNDS_DIR", "ST_SOUNDS_DIR"}, "./sounds"),
		AutoRegister: getEnvBoolAny([]string{"SOUNDTRIGGER_AUTO_REGISTER", "ST_AUTO_REGISTER"}, false),
		AutoStart:    getEnvBoolAny([]string{"SOUNDTRIGGER_AUTOSTART", "ST_AUTOSTART"}, false),

		S3AccessKeyID:     getEnvAny([]string{"SOUNDTRIGGER_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SOUNDTRIGGER_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SOUNDTRIGGER_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SOUNDTRIGGER_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Prefix:          getEnvAny([]string{"SOUNDTRIGGER_S3_PREFIX", "S3_PREFIX"}, ""),
		S3Endpoint:        getEnvAny([]string{"SOUNDTRIGGER_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SOUNDTRIGGER_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		SampleRate:     getEnvIntAny([]string{"SOUNDTRIGGER_SAMPLE_RATE", "ST_SAMPLE_RATE"}, 44100),
		BufferDuration: getEnvDurationAny([]string{"SOUNDTRIGGER_BUFFER", "ST_BUFFER"}, 100*time.Millisecond),

		SettleDelay:  getEnvDurationAny([]string{"SOUNDTRIGGER_SETTLE_DELAY", "ST_SETTLE_DELAY"}, 500*time.Millisecond),
		MaxJitter:    getEnvDurationAny([]string{"SOUNDTRIGGER_MAX_JITTER", "ST_MAX_JITTER"}, 500*time.Millisecond),
		RepeatWeight: getEnvFloatAny([]string{"SOUNDTRIGGER_REPEAT_WEIGHT", "ST_REPEAT_WEIGHT"}, 0.5),

		RedisEnabled:  getEnvBoolAny([]string{"SOUNDTRIGGER_REDIS_ENABLED", "ST_REDIS_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"SOUNDTRIGGER_REDIS_ADDR", "ST_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"SOUNDTRIGGER_REDIS_PASSWORD", "ST_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"SOUNDTRIGGER_REDIS_DB", "ST_REDIS_DB"}, 0),
		CacheTTL:      getEnvDurationAny([]string{"SOUNDTRIGGER_CACHE_TTL", "ST_CACHE_TTL"}, 30*time.Second),

		TracingEnabled:    getEnvBoolAny([]string{"SOUNDTRIGGER_TRACING_ENABLED", "ST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SOUNDTRIGGER_OTLP_ENDPOINT", "ST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SOUNDTRIGGER_TRACING_SAMPLE_RATE", "ST_TRACING_SAMPLE_RATE"}, 1.0),

		StatusHistorySize: getEnvIntAny([]string{"SOUNDTRIGGER_STATUS_HISTORY", "ST_STATUS_HISTORY"}, 200),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("%w: unsupported database backend %q", ErrInvalidConfig, c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("%w: SOUNDTRIGGER_DB_DSN or ST_DB_DSN must be provided", ErrInvalidConfig)
	}

	switch c.SoundSource {
	case SoundSourceFS:
		if c.SoundsDir == "" {
			return fmt.Errorf("%w: SOUNDTRIGGER_SOUNDS_DIR must be set for the fs sound source", ErrInvalidConfig)
		}
	case SoundSourceS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: SOUNDTRIGGER_S3_BUCKET must be set for the s3 sound source", ErrInvalidConfig)
		}
		if c.AutoRegister {
			return fmt.Errorf("%w: auto-register watches a local directory and cannot be used with s3", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported sound source %q", ErrInvalidConfig, c.SoundSource)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http port %d out of range", ErrInvalidConfig, c.HTTPPort)
	}
	if c.SampleRate < 8000 {
		return fmt.Errorf("%w: sample rate %d too low", ErrInvalidConfig, c.SampleRate)
	}
	if c.SettleDelay < 0 || c.MaxJitter < 0 {
		return fmt.Errorf("%w: settle delay and jitter must not be negative", ErrInvalidConfig)
	}
	if c.RepeatWeight <= 0 || c.RepeatWeight > 1 {
		return fmt.Errorf("%w: repeat weight must be in (0,1], got %v", ErrInvalidConfig, c.RepeatWeight)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("%w: tracing sample rate must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}

// HTTPAddr returns the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"SOUNDS_DIR":      "use SOUNDTRIGGER_SOUNDS_DIR (or ST_SOUNDS_DIR)",
		"TRACING_ENABLED": "use SOUNDTRIGGER_TRACING_ENABLED (or ST_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use SOUNDTRIGGER_OTLP_ENDPOINT (or ST_OTLP_ENDPOINT)",
		"REDIS_ADDR":      "use SOUNDTRIGGER_REDIS_ADDR (or ST_REDIS_ADDR)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("750ms") or bare milliseconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
