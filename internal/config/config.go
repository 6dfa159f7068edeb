// Package config loads server settings from HOMEQUEST_* environment
// variables, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	JWTSecret      string
	TokenTTL       time.Duration
	PasswordPepper string
	// AppKey, when set, must be sent by clients in the X-App-Key header.
	AppKey string

	ProofDir      string
	ProofMaxBytes int64
	S3            S3Config

	RateLimit float64 // requests per second per client IP
	RateBurst int
	// TrustProxy honors CF-Connecting-IP and X-Forwarded-For. Enable only
	// behind a proxy that sets them.
	TrustProxy bool
}

// S3Config selects S3-compatible proof storage when Bucket is set.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Load reads the environment. A missing .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		Port:      envString("HOMEQUEST_PORT", "8080"),
		DBPath:    envString("HOMEQUEST_DB_PATH", "homequest.db"),
		LogLevel:  envString("HOMEQUEST_LOG_LEVEL", "info"),
		LogFormat: envString("HOMEQUEST_LOG_FORMAT", "text"),

		JWTSecret:      envString("HOMEQUEST_JWT_SECRET", ""),
		TokenTTL:       envDuration("HOMEQUEST_TOKEN_TTL", 24*time.Hour),
		PasswordPepper: envString("HOMEQUEST_PASSWORD_PEPPER", ""),
		AppKey:         envString("HOMEQUEST_APP_KEY", ""),

		ProofDir:      envString("HOMEQUEST_PROOF_DIR", "proofs"),
		ProofMaxBytes: envInt64("HOMEQUEST_PROOF_MAX_BYTES", 10<<20),
		S3: S3Config{
			Endpoint:  envString("HOMEQUEST_S3_ENDPOINT", ""),
			Bucket:    envString("HOMEQUEST_S3_BUCKET", ""),
			Region:    envString("HOMEQUEST_S3_REGION", "us-east-1"),
			AccessKey: envString("HOMEQUEST_S3_ACCESS_KEY", ""),
			SecretKey: envString("HOMEQUEST_S3_SECRET_KEY", ""),
			Prefix:    envString("HOMEQUEST_S3_PREFIX", ""),
		},

		RateLimit:  envFloat("HOMEQUEST_RATE_LIMIT", 5),
		RateBurst:  envInt("HOMEQUEST_RATE_BURST", 30),
		TrustProxy: envBool("HOMEQUEST_TRUST_PROXY", false),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("HOMEQUEST_JWT_SECRET is required")
	}
	if cfg.S3.Enabled() && (cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "") {
		return Config{}, errors.New("HOMEQUEST_S3_ACCESS_KEY and HOMEQUEST_S3_SECRET_KEY are required with HOMEQUEST_S3_BUCKET")
	}
	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
