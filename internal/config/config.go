package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	MemoryStore bool
	Port        string
	FrontendURL string

	SecretKey  string
	SigningAlg string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	InviteTTL  time.Duration

	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int
	OTPCooldown    time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        "8080", // default port
		FrontendURL: "http://localhost:8080",
		SigningAlg:  "HS256",
	}

	// Load APP_SECRET_KEY (required, signs every token)
	secret := os.Getenv("APP_SECRET_KEY")
	if secret == "" {
		return nil, fmt.Errorf("APP_SECRET_KEY environment variable is required")
	}
	cfg.SecretKey = secret

	if alg := os.Getenv("SIGNING_ALGORITHM"); alg != "" {
		if alg != "HS256" {
			return nil, fmt.Errorf("unsupported SIGNING_ALGORITHM %q (only HS256)", alg)
		}
		cfg.SigningAlg = alg
	}

	// Load MEMORY_STORE (optional; skips Postgres entirely when true)
	cfg.MemoryStore = os.Getenv("MEMORY_STORE") == "true"

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" && !cfg.MemoryStore {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if databaseURL != "" {
		if u, err := url.Parse(databaseURL); err == nil {
			host := u.Hostname()
			if host == "" {
				host = "localhost"
			}
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			dbName := strings.TrimPrefix(u.Path, "/")
			if idx := strings.Index(dbName, "?"); idx >= 0 {
				dbName = dbName[:idx]
			}
			user := u.User.Username()
			if user == "" {
				user = "(none)"
			}
			log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
		}
	}

	// Load PORT (optional, defaults to 8080)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if front := os.Getenv("FRONTEND_URL"); front != "" {
		cfg.FrontendURL = strings.TrimRight(front, "/")
	}

	var err error
	if cfg.AccessTTL, err = durationEnv("ACCESS_TOKEN_TTL_MINUTES", 30, time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = durationEnv("REFRESH_TOKEN_TTL_DAYS", 7, 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ResetTTL, err = durationEnv("RESET_TOKEN_TTL_HOURS", 2, time.Hour); err != nil {
		return nil, err
	}
	if cfg.InviteTTL, err = durationEnv("INVITE_TOKEN_TTL_DAYS", 7, 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.OTPLength, err = intEnv("OTP_LENGTH", 6); err != nil {
		return nil, err
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 10 {
		return nil, fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", cfg.OTPLength)
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL_MINUTES", 10, time.Minute); err != nil {
		return nil, err
	}
	if cfg.OTPMaxAttempts, err = intEnv("OTP_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", cfg.OTPMaxAttempts)
	}
	if cfg.OTPCooldown, err = durationEnv("OTP_COOLDOWN_MINUTES", 5, time.Minute); err != nil {
		return nil, err
	}

	// SMTP is optional; without it mail is logged instead of sent
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.EmailFrom = os.Getenv("EMAIL_FROM")
	if cfg.EmailFrom == "" {
		cfg.EmailFrom = cfg.SMTPUsername
	}

	return cfg, nil
}

// SMTPConfigured reports whether an SMTP transport can be built from this config.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func durationEnv(name string, def int, unit time.Duration) (time.Duration, error) {
	n, err := intEnv(name, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return time.Duration(n) * unit, nil
}
