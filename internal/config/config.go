// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

// Package config loads AuthKeep configuration.
//
// Values are layered: flag defaults, then the YAML file, then flags the user
// set explicitly. DATABASE_URL and REDIS_URL fill the matching keys when
// neither the file nor a flag provides them.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authkeep/authkeep/internal/logging"
)

// Session store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Mail drivers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// MinSecretLength is the minimum HMAC secret length in bytes.
const MinSecretLength = 32

// Config is the full AuthKeep configuration.
type Config struct {
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`

	Database DatabaseConfig `koanf:"database"`
	Sessions SessionsConfig `koanf:"sessions"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Mail     MailConfig     `koanf:"mail"`
	Sweep    SweepConfig    `koanf:"sweep"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int           `koanf:"max_conns"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// SessionsConfig selects where refresh sessions live.
type SessionsConfig struct {
	Backend     string `koanf:"backend"`
	RedisURL    string `koanf:"redis_url"`
	RedisPrefix string `koanf:"redis_prefix"`
}

// TokensConfig holds signing keys and lifetimes.
type TokensConfig struct {
	Issuer          string        `koanf:"issuer"`
	AccessSecret    string        `koanf:"access_secret"`
	RefreshSecret   string        `koanf:"refresh_secret"`
	AccessTTL       time.Duration `koanf:"access_ttl"`
	RefreshTTL      time.Duration `koanf:"refresh_ttl"`
	VerificationTTL time.Duration `koanf:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl"`
}

// MailConfig selects and configures the mailer.
type MailConfig struct {
	Driver      string        `koanf:"driver"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	From        string        `koanf:"from"`
	LinkBaseURL string        `koanf:"link_base_url"`
	Attempts    int           `koanf:"attempts"`
	Backoff     time.Duration `koanf:"backoff"`
}

// SweepConfig controls the periodic cleanup run by serve. Zero disables it.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":          "log_format",
	"log-level":           "log_level",
	"metrics-addr":        "metrics_addr",
	"database-url":        "database.url",
	"db-max-conns":        "database.max_conns",
	"db-connect-attempts": "database.connect_attempts",
	"db-connect-backoff":  "database.connect_backoff",
	"auto-migrate":        "database.auto_migrate",
	"session-backend":     "sessions.backend",
	"redis-url":           "sessions.redis_url",
	"redis-prefix":        "sessions.redis_prefix",
	"token-issuer":        "tokens.issuer",
	"access-secret":       "tokens.access_secret",
	"refresh-secret":      "tokens.refresh_secret",
	"access-ttl":          "tokens.access_ttl",
	"refresh-ttl":         "tokens.refresh_ttl",
	"verification-ttl":    "tokens.verification_ttl",
	"reset-ttl":           "tokens.reset_ttl",
	"mail-driver":         "mail.driver",
	"smtp-host":           "mail.host",
	"smtp-port":           "mail.port",
	"smtp-username":       "mail.username",
	"smtp-password":       "mail.password",
	"mail-from":           "mail.from",
	"link-base-url":       "mail.link_base_url",
	"mail-attempts":       "mail.attempts",
	"mail-backoff":        "mail.backoff",
	"sweep-interval":      "sweep.interval",
}

// RegisterFlags adds every configuration flag, with its default, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")

	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.Int("db-max-conns", 10, "maximum pool connections")
	fs.Int("db-connect-attempts", 5, "initial connection attempts")
	fs.Duration("db-connect-backoff", 500*time.Millisecond, "first connection retry delay")
	fs.Bool("auto-migrate", false, "apply pending migrations on startup")

	fs.String("session-backend", BackendPostgres, "session store backend (postgres or redis)")
	fs.String("redis-url", "", "Redis URL for the redis backend (default: $REDIS_URL)")
	fs.String("redis-prefix", "authkeep", "Redis key prefix")

	fs.String("token-issuer", "authkeep", "issuer claim for signed tokens")
	fs.String("access-secret", "", "HMAC secret for access tokens")
	fs.String("refresh-secret", "", "HMAC secret for refresh tokens")
	fs.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	fs.Duration("refresh-ttl", 7*24*time.Hour, "refresh token and session lifetime")
	fs.Duration("verification-ttl", 24*time.Hour, "email verification token lifetime")
	fs.Duration("reset-ttl", time.Hour, "password reset token lifetime")

	fs.String("mail-driver", MailLog, "mail driver (smtp or log)")
	fs.String("smtp-host", "", "SMTP host")
	fs.Int("smtp-port", 587, "SMTP port")
	fs.String("smtp-username", "", "SMTP username")
	fs.String("smtp-password", "", "SMTP password")
	fs.String("mail-from", "", "sender address")
	fs.String("link-base-url", "http://localhost:3000", "base URL for links in emails")
	fs.Int("mail-attempts", 3, "delivery attempts per message")
	fs.Duration("mail-backoff", time.Second, "first delivery retry delay")

	fs.Duration("sweep-interval", time.Hour, "interval between expired-record sweeps (0 = disabled)")
}

// Load builds a Config from the optional YAML file at path and the flags in
// fs. fs must have been populated by RegisterFlags.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	// Passing k makes unchanged flags fill only keys the file left unset.
	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Sessions.RedisURL == "" {
		cfg.Sessions.RedisURL = os.Getenv("REDIS_URL")
	}
	return &cfg, nil
}

// ValidateDatabase checks the settings needed to reach PostgreSQL.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required (flag, config file or DATABASE_URL)")
	}
	if c.Database.MaxConns < 1 {
		return invalid("database.max_conns", "must be at least 1")
	}
	if c.Database.ConnectAttempts < 1 {
		return invalid("database.connect_attempts", "must be at least 1")
	}
	return nil
}

// Validate checks everything serve and sweep need.
func (c *Config) Validate() error {
	if !logging.ValidFormat(c.LogFormat) {
		return invalid("log_format", "must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown level %q", c.LogLevel)
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}

	switch c.Sessions.Backend {
	case BackendPostgres:
	case BackendRedis:
		if c.Sessions.RedisURL == "" {
			return invalid("sessions.redis_url", "redis url is required for the redis backend (flag, config file or REDIS_URL)")
		}
	default:
		return invalid("sessions.backend", "must be %q or %q, got %q", BackendPostgres, BackendRedis, c.Sessions.Backend)
	}

	if err := c.Tokens.validate(); err != nil {
		return err
	}
	if err := c.Mail.validate(); err != nil {
		return err
	}
	if c.Sweep.Interval < 0 {
		return invalid("sweep.interval", "cannot be negative")
	}
	return nil
}

func (t TokensConfig) validate() error {
	if len(t.AccessSecret) < MinSecretLength {
		return invalid("tokens.access_secret", "must be at least %d bytes", MinSecretLength)
	}
	if len(t.RefreshSecret) < MinSecretLength {
		return invalid("tokens.refresh_secret", "must be at least %d bytes", MinSecretLength)
	}
	if t.AccessSecret == t.RefreshSecret {
		return invalid("tokens.refresh_secret", "must differ from the access secret")
	}
	for key, ttl := range map[string]time.Duration{
		"tokens.access_ttl":       t.AccessTTL,
		"tokens.refresh_ttl":      t.RefreshTTL,
		"tokens.verification_ttl": t.VerificationTTL,
		"tokens.reset_ttl":        t.ResetTTL,
	} {
		if ttl <= 0 {
			return invalid(key, "must be positive")
		}
	}
	if t.AccessTTL >= t.RefreshTTL {
		return invalid("tokens.access_ttl", "must be shorter than the refresh ttl")
	}
	return nil
}

func (m MailConfig) validate() error {
	switch m.Driver {
	case MailLog:
		return nil
	case MailSMTP:
	default:
		return invalid("mail.driver", "must be %q or %q, got %q", MailSMTP, MailLog, m.Driver)
	}
	if m.Host == "" {
		return invalid("mail.host", "smtp host is required")
	}
	if m.From == "" || !strings.Contains(m.From, "@") {
		return invalid("mail.from", "a sender address is required")
	}
	if m.Attempts < 1 {
		return invalid("mail.attempts", "must be at least 1")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}
