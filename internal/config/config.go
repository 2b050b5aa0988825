package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string // development, production
	LogLevel string

	// Storage
	DatabaseURL  string
	JournalPath  string
	SettingsPath string

	// Documents
	DocumentTemplate string

	// SMTP
	SMTPHost          string
	SMTPPort          string
	SMTPUser          string
	SMTPPass          string
	SMTPFromEmail     string
	SMTPFromName      string
	DestinationEmail  string
	PGPPublicKeyPath  string
	SMTPRatePerMinute int

	// Regulated channel
	RegulatedURL       string
	RegulatedHostID    string
	RegulatedPartnerID string
	RegulatedUserID    string

	APIRatePerMinute int
}

// FromEnv reads the configuration from the environment and an optional
// .env file without validating it.
func FromEnv() *Config {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JournalPath:        getEnv("JOURNAL_PATH", "./data/journal.db"),
		SettingsPath:       getEnv("SETTINGS_PATH", "./settings.yaml"),
		DocumentTemplate:   getEnv("DOCUMENT_TEMPLATE", "./templates/rfp.tmpl"),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnv("SMTP_PORT", "587"),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPass:           getEnv("SMTP_PASS", ""),
		SMTPFromEmail:      getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:       getEnv("SMTP_FROM_NAME", ""),
		DestinationEmail:   getEnv("DESTINATION_EMAIL", ""),
		PGPPublicKeyPath:   getEnv("PGP_PUBLIC_KEY_PATH", ""),
		SMTPRatePerMinute:  getEnvInt("SMTP_RATE_PER_MINUTE", 30),
		RegulatedURL:       getEnv("REGULATED_URL", ""),
		RegulatedHostID:    getEnv("REGULATED_HOST_ID", ""),
		RegulatedPartnerID: getEnv("REGULATED_PARTNER_ID", ""),
		RegulatedUserID:    getEnv("REGULATED_USER_ID", ""),
		APIRatePerMinute:   getEnvInt("API_RATE_PER_MINUTE", 120),
	}
}

// Load reads the environment, applies command line flags from args and
// validates the result.
func Load(args []string) (*Config, error) {
	cfg := FromEnv()

	// Define flags with env var fallbacks
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "Server port")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development, production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string of the record source")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "SQLite dispatch journal path")
	fs.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "Workflow settings file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if _, err := strconv.Atoi(c.SMTPPort); err != nil {
		errs = append(errs, fmt.Errorf("SMTP_PORT must be a number, got %q", c.SMTPPort))
	}
	if c.SMTPRatePerMinute < 0 || c.APIRatePerMinute < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPPortNumber returns the validated SMTP port.
func (c *Config) SMTPPortNumber() int {
	n, _ := strconv.Atoi(c.SMTPPort)
	return n
}

// Level returns the log level: LOG_LEVEL when set, else debug in
// development and info otherwise.
func (c *Config) Level() slog.Level {
	if lvl, err := ParseLevel(c.LogLevel); err == nil && c.LogLevel != "" {
		return lvl
	}
	if c.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring non-numeric value", "key", key, "value", v)
		return fallback
	}
	return n
}
