// Package config provides centralized configuration management for the notefold server.
// It loads configuration from CLI flags and environment variables, validates required fields,
// and provides sensible defaults.
//
// CLI flags control which services are mocked (--no-email, --no-s3, --test).
// Environment variables provide secrets and service configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/notefold/internal/ratelimit"
)

const (
	defaultS3Region = "auto"

	// DefaultStorageQuotaBytes is the per-user content quota (40 MB).
	DefaultStorageQuotaBytes = 40 * 1024 * 1024
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string

	// Database and encryption
	MasterKey    string // 64 hex characters (32 bytes)
	DatabasePath string // Directory holding shared.db and {user_id}.db files

	// Bearer tokens
	JWTSigningKey string        // 64 hex characters (ed25519 seed)
	TokenTTL      time.Duration // Lifetime of issued tokens

	// Redis (optional). When set, the token blacklist and rate limits are shared.
	RedisURL string

	// Rate limiting
	RateLimitConfig     ratelimit.Config // per user on /api
	AuthRateLimitConfig ratelimit.Config // per client IP on /api/auth

	// Storage quota
	StorageQuotaBytes    int64
	QuotaEnforceOnUpdate bool

	// Mock service flags (controlled by CLI flags, not env vars)
	NoEmail bool // If true, use mock email service (--no-email)
	NoS3    bool // If true, use in-memory S3 (--no-s3)

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string

	// Chat providers; a provider is enabled when its key is set.
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIDefaultModel string
	GeminiAPIKey       string
	GeminiDefaultModel string

	// S3 storage for exports
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Flags holds parsed CLI flag values.
type Flags struct {
	NoEmail bool
	NoS3    bool
	Addr    string
}

// ParseFlags parses CLI flags and returns them. Call before LoadConfig.
func ParseFlags() Flags {
	var f Flags
	var testMode bool
	flag.BoolVar(&f.NoEmail, "no-email", false, "Use mock email service (logs emails to console)")
	flag.BoolVar(&f.NoS3, "no-s3", false, "Use mock S3 storage (in-memory)")
	flag.BoolVar(&testMode, "test", false, "Shorthand for --no-email --no-s3")
	flag.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.Parse()

	if testMode {
		f.NoEmail = true
		f.NoS3 = true
	}
	return f
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	cfg.NoEmail = f.NoEmail
	cfg.NoS3 = f.NoS3

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if f.Addr != "" {
		cfg.ListenAddr = f.Addr
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_URL")), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	// Database and encryption
	cfg.MasterKey = strings.TrimSpace(os.Getenv("MASTER_KEY"))
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "/data")

	// Tokens
	cfg.JWTSigningKey = strings.TrimSpace(os.Getenv("JWT_SIGNING_KEY"))
	cfg.TokenTTL = parseDurationOrDefault("TOKEN_TTL", 7*24*time.Hour)

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	// Rate limiting
	cleanup := parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: cleanup,
	}
	cfg.AuthRateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("AUTH_RATE_LIMIT_RPS", ratelimit.DefaultAuthConfig.RPS),
		Burst:           parseIntOrDefault("AUTH_RATE_LIMIT_BURST", ratelimit.DefaultAuthConfig.Burst),
		CleanupInterval: cleanup,
	}

	// Storage quota
	cfg.StorageQuotaBytes = int64(parseIntOrDefault("STORAGE_QUOTA_BYTES", DefaultStorageQuotaBytes))
	cfg.QuotaEnforceOnUpdate = parseBoolOrDefault("QUOTA_ENFORCE_ON_UPDATE", false)

	// Resend Email
	cfg.ResendAPIKey = strings.TrimSpace(os.Getenv("RESEND_API_KEY"))
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "noreply@notefold.app")

	// Chat providers
	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.OpenAIDefaultModel = getEnvOrDefault("OPENAI_DEFAULT_MODEL", "gpt-4o-mini")
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.GeminiDefaultModel = getEnvOrDefault("GEMINI_DEFAULT_MODEL", "gemini-2.5-flash")

	// S3 storage
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.AWSPublicURL = strings.TrimSpace(os.Getenv("S3_PUBLIC_URL"))
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When mocks are NOT active for a service, the corresponding secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoEmail && c.ResendAPIKey == "" {
		errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	// Losing MASTER_KEY makes every user database unreadable.
	if c.MasterKey == "" {
		errs = append(errs, "MASTER_KEY is required (generate with: openssl rand -hex 32)")
	} else if len(c.MasterKey) != 64 {
		errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
	}

	if c.JWTSigningKey == "" {
		errs = append(errs, "JWT_SIGNING_KEY is required (generate with: openssl rand -hex 32)")
	} else if len(c.JWTSigningKey) != 64 {
		errs = append(errs, "JWT_SIGNING_KEY must be 64 hex characters (ed25519 seed)")
	}

	if c.TokenTTL <= 0 {
		errs = append(errs, "TOKEN_TTL must be positive")
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		errs = append(errs, "REDIS_URL must start with redis:// or rediss://")
	}

	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if c.AuthRateLimitConfig.RPS <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_RPS must be positive")
	}
	if c.AuthRateLimitConfig.Burst <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_BURST must be positive")
	}
	if c.StorageQuotaBytes <= 0 {
		errs = append(errs, "STORAGE_QUOTA_BYTES must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// IsProduction returns true if all mock services are disabled.
func (c *Config) IsProduction() bool {
	return !c.NoEmail && !c.NoS3
}

// RequireSecureCookies returns true if secure cookies should be required.
// Returns false for localhost development URLs.
func (c *Config) RequireSecureCookies() bool {
	return !strings.HasPrefix(c.BaseURL, "http://localhost") &&
		!strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "notefold server starting...")

	if c.NoEmail {
		fmt.Fprintln(os.Stderr, "  Email:   Mock (--no-email)")
	} else {
		fmt.Fprintf(os.Stderr, "  Email:   Resend (real, from: %s)\n", c.ResendFromEmail)
	}

	if c.NoS3 {
		fmt.Fprintln(os.Stderr, "  Exports: Mock S3 (--no-s3)")
	} else {
		fmt.Fprintf(os.Stderr, "  Exports: S3 (real, endpoint: %s)\n", c.AWSEndpointS3)
	}

	if c.RedisURL != "" {
		fmt.Fprintln(os.Stderr, "  Limits:  Redis (shared blacklist and rate limits)")
	} else {
		fmt.Fprintln(os.Stderr, "  Limits:  In-process (single instance only)")
	}

	var providers []string
	if c.OpenAIAPIKey != "" {
		providers = append(providers, "openai")
	}
	if c.GeminiAPIKey != "" {
		providers = append(providers, "gemini")
	}
	if len(providers) == 0 {
		providers = append(providers, "none")
	}
	fmt.Fprintf(os.Stderr, "  Chat:    %s\n", strings.Join(providers, ", "))
	fmt.Fprintf(os.Stderr, "  Quota:   %d bytes per user\n", c.StorageQuotaBytes)
	fmt.Fprintf(os.Stderr, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:    %s\n", c.BaseURL)
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(f Flags) *Config {
	cfg, err := LoadConfig(f)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
