package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and injected; nothing reads the
// environment after Load returns.
type Config struct {
	Port        string
	DatabaseURL string

	// Token signing.
	JWTSecret    string
	JWTExpiresIn time.Duration // 0 disables expiry

	// RNCryptor password for encrypted location payloads.
	EncryptionPassword string

	// Reserved organization token with cross-tenant read access. Devices
	// can never register under it.
	AdminToken string

	// Company tokens known to generate abusive traffic volume, and the
	// size of the deterrent body sent back to them.
	DDoSCompanyTokens []string
	DeterrentSize     int64

	// Maximum accepted request body size.
	ParserLimit int64

	LogLevel string
}

const (
	defaultPort          = "9000"
	defaultAdminToken    = "admin"
	defaultParserLimit   = 1 << 20 // 1mb, same as the client defaults
	defaultDeterrentSize = 1 << 30
)

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("HTTP_PORT", defaultPort),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		EncryptionPassword: os.Getenv("ENCRYPTION_PASSWORD"),
		AdminToken:         getEnv("ADMIN_TOKEN", defaultAdminToken),
		ParserLimit:        defaultParserLimit,
		DeterrentSize:      defaultDeterrentSize,
		LogLevel:           os.Getenv("LOG_LEVEL"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	if s := os.Getenv("JWT_EXPIRES_IN"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
		}
		cfg.JWTExpiresIn = d
	}
	if s := os.Getenv("DDOS_COMPANY_TOKENS"); s != "" {
		for _, tok := range strings.Split(s, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				cfg.DDoSCompanyTokens = append(cfg.DDoSCompanyTokens, tok)
			}
		}
	}
	if s := os.Getenv("PARSER_LIMIT"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("PARSER_LIMIT must be a positive integer")
		}
		cfg.ParserLimit = n
	}
	if s := os.Getenv("DETERRENT_SIZE"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("DETERRENT_SIZE must be a positive integer")
		}
		cfg.DeterrentSize = n
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
