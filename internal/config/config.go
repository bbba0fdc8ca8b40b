// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultSessionTTL    = 168 * time.Hour
	defaultPendingTTL    = 5 * time.Minute
	defaultRateWindow    = time.Minute
	defaultRateBlock     = 15 * time.Minute
	defaultJanitorPeriod = time.Hour
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health-check listener. Empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	// Production turns on Secure cookies and rejects dev-only switches.
	Env string `mapstructure:"APP_ENV"`

	// SessionTTLRaw is the session lifetime (e.g. "168h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// PendingTTLRaw is the lifetime of a pending second-factor token (e.g. "5m").
	PendingTTLRaw string `mapstructure:"PENDING_2FA_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// TOTPIssuer is the issuer label written into otpauth:// enrollment URIs.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// RecoveryCodeCount is how many recovery codes are issued per batch.
	RecoveryCodeCount int `mapstructure:"RECOVERY_CODE_COUNT"`
	// AllowSelfRevoke permits a user to revoke the session they are currently using.
	AllowSelfRevoke bool `mapstructure:"ALLOW_SELF_REVOKE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file used to sign pending-2FA cookies.
	// When both keys are empty an ephemeral P-256 key is generated at startup.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of pending-2FA tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of pending-2FA tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// TurnstileSecretKey is the bot-verification secret. Empty disables verification (not allowed in production).
	TurnstileSecretKey string `mapstructure:"TURNSTILE_SECRET_KEY"`
	// TurnstileVerifyURL is the siteverify endpoint.
	TurnstileVerifyURL string `mapstructure:"TURNSTILE_VERIFY_URL"`

	// RedisAddr enables the login rate limiter when set.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// LoginRateLimit is the number of login attempts allowed per window per client.
	LoginRateLimit int `mapstructure:"LOGIN_RATE_LIMIT"`
	// LoginRateWindowRaw is the rate-limit counting window (e.g. "1m").
	LoginRateWindowRaw string `mapstructure:"LOGIN_RATE_WINDOW"`
	// LoginRateBlockRaw is how long a client stays blocked after exceeding the limit (e.g. "15m").
	LoginRateBlockRaw string `mapstructure:"LOGIN_RATE_BLOCK"`
	// TrustedProxies is a comma-separated list of CIDRs or IPs of reverse proxies whose
	// X-Forwarded-For / X-Real-IP headers are believed. Empty trusts no one.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// KafkaBrokers is a comma-separated list of Kafka brokers. When set, auth events are streamed to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsTopic is the Kafka topic for auth events.
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint. Empty installs no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JanitorIntervalRaw is how often the worker purges expired sessions and pending tokens.
	JanitorIntervalRaw string `mapstructure:"JANITOR_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_HEALTH_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("PENDING_2FA_TTL", "5m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TOTP_ISSUER", "TwoFactorSession")
	v.SetDefault("RECOVERY_CODE_COUNT", 10)
	v.SetDefault("ALLOW_SELF_REVOKE", false)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "twofactor-session")
	v.SetDefault("JWT_AUDIENCE", "twofactor-session-2fa")
	v.SetDefault("TURNSTILE_SECRET_KEY", "")
	v.SetDefault("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW", "1m")
	v.SetDefault("LOGIN_RATE_BLOCK", "15m")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "auth-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JANITOR_INTERVAL", "1h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RecoveryCodeCount == 0 {
		cfg.RecoveryCodeCount = 10
	}
	if cfg.RecoveryCodeCount < 1 || cfg.RecoveryCodeCount > 50 {
		return nil, errors.New("config: RECOVERY_CODE_COUNT must be between 1 and 50")
	}

	if (cfg.JWTPrivateKey == "") != (cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}

	if cfg.IsProduction() && cfg.TurnstileSecretKey == "" {
		return nil, errors.New("config: TURNSTILE_SECRET_KEY is required when APP_ENV=production")
	}

	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = 10
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// SecureCookies reports whether cookies must carry the Secure attribute (production only).
func (c *Config) SecureCookies() bool {
	return c.IsProduction()
}

// SessionTTL parses SessionTTLRaw as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, defaultSessionTTL)
}

// PendingTTL parses PendingTTLRaw as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) PendingTTL() time.Duration {
	return parseDuration(c.PendingTTLRaw, defaultPendingTTL)
}

// LoginRateWindow returns the rate-limit window. Returns 1m if unset or invalid.
func (c *Config) LoginRateWindow() time.Duration {
	return parseDuration(c.LoginRateWindowRaw, defaultRateWindow)
}

// LoginRateBlock returns the rate-limit block duration. Returns 15m if unset or invalid.
func (c *Config) LoginRateBlock() time.Duration {
	return parseDuration(c.LoginRateBlockRaw, defaultRateBlock)
}

// JanitorInterval returns how often expired rows are purged. Returns 1h if unset or invalid.
func (c *Config) JanitorInterval() time.Duration {
	return parseDuration(c.JanitorIntervalRaw, defaultJanitorPeriod)
}

// TrustedProxiesList returns the trusted proxy entries from the comma-separated config.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the auth-event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
