// Package config provides configuration loading helpers for the gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the gateway's full runtime configuration, loaded via envdecode
// after an optional .env file has been merged into the process environment.
type Config struct {
	Port             int           `env:"PORT,default=8080"`
	LogLevel         string        `env:"LOG_LEVEL,default=info"`
	LogFormat        string        `env:"LOG_FORMAT,default=json"`
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	RedisURL         string        `env:"REDIS_URL,default="`
	MaxInputLength   int           `env:"MAX_INPUT_LENGTH,default=2000"`
	RequestDeadline  time.Duration `env:"REQUEST_DEADLINE,default=30s"`
	SandboxMemoryCap int64         `env:"SANDBOX_MEMORY_CAP,default=67108864"`
	SandboxTimeout   time.Duration `env:"SANDBOX_TIMEOUT,default=5s"`
	CacheTTL         time.Duration `env:"CACHE_TTL,default=1h"`
	CacheSize        int           `env:"CACHE_SIZE,default=10000"`
	AuditHMACKey     string        `env:"AUDIT_HMAC_KEY,required"`
	AttestationSeed  string        `env:"ATTESTATION_SIGNING_SEED,default="`
	RateLimitPerKey  int           `env:"RATE_LIMIT_PER_KEY,default=100"`
	RateLimitGlobal  int           `env:"RATE_LIMIT_GLOBAL,default=1000"`
	MaxInFlight      int           `env:"MAX_IN_FLIGHT,default=256"`
	CORSOrigins      string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	MaxRequestBytes  int64         `env:"MAX_REQUEST_BYTES,default=1048576"`
}

// Load merges a .env file (if present) into the environment, then decodes
// Config from it. Missing .env is not an error — production deployments
// set real environment variables instead.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// GetEnv retrieves an environment variable with optional default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable with optional default.
// Accepts "true", "1", "yes", "y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	lower := strings.ToLower(val)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "y"
}

// GetEnvInt retrieves an integer environment variable with optional default.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseEnvDuration parses a duration from the named environment variable.
func ParseEnvDuration(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// SplitAndTrimCSV splits a CSV string and trims each part, dropping empties.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ParseByteSize parses a size string like "64MB" into bytes.
// Supported suffixes: b, k/kb/kib, m/mb/mib, g/gb/gib (case-insensitive).
func ParseByteSize(raw string) (int64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("empty size")
	}

	type suffix struct {
		value      string
		multiplier int64
	}

	suffixes := []suffix{
		{"gib", 1024 * 1024 * 1024},
		{"gb", 1024 * 1024 * 1024},
		{"g", 1024 * 1024 * 1024},
		{"mib", 1024 * 1024},
		{"mb", 1024 * 1024},
		{"m", 1024 * 1024},
		{"kib", 1024},
		{"kb", 1024},
		{"k", 1024},
		{"b", 1},
	}

	const maxInt64 = int64(^uint64(0) >> 1)

	for _, entry := range suffixes {
		if !strings.HasSuffix(value, entry.value) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(value, entry.value))
		if num == "" {
			return 0, fmt.Errorf("missing size value")
		}
		parsed, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, err
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("size must be positive")
		}
		if parsed > maxInt64/entry.multiplier {
			return 0, fmt.Errorf("size too large")
		}
		return parsed * entry.multiplier, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return parsed, nil
}

// ParseDurationOrDefault parses a duration string or returns the default.
func ParseDurationOrDefault(raw string, defaultDuration time.Duration) time.Duration {
	if raw == "" {
		return defaultDuration
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	return defaultDuration
}

// ParseIntOrDefault parses an integer string or returns the default.
func ParseIntOrDefault(raw string, defaultValue int) int {
	if raw == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return defaultValue
}

// DefaultTimeouts holds standard timeout values for gateway subsystems.
type DefaultTimeouts struct {
	HTTP     time.Duration
	Database time.Duration
	Engine   time.Duration
	Sandbox  time.Duration
}

// GetDefaultTimeouts returns the gateway's standard timeout values.
func GetDefaultTimeouts() DefaultTimeouts {
	return DefaultTimeouts{
		HTTP:     30 * time.Second,
		Database: 10 * time.Second,
		Engine:   15 * time.Second,
		Sandbox:  5 * time.Second,
	}
}
