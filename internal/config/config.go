// Package config loads server configuration.
//
// Values are layered, later layers winning:
//
//	defaults → TOML file (optional) → .env file (optional) → environment variables
//
// The TOML file uses the same names as the environment variables, lower-cased
// (e.g. jwt_secret = "...", admin_emails = ["a@example.com"]).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

type Config struct {
	Port          int      `toml:"port"`
	DBPath        string   `toml:"db_path"`
	JWTSecret     string   `toml:"jwt_secret"`
	AdminEmails   []string `toml:"admin_emails"`
	PublicBaseURL string   `toml:"public_base_url"`
	CORSOrigins   []string `toml:"cors_origins"`
	MaxUploadMB   int64    `toml:"max_upload_mb"`
	LogLevel      string   `toml:"log_level"`
	SecureCookies bool     `toml:"secure_cookies"`

	StorageDriver string `toml:"storage_driver"`
	StorageDir    string `toml:"storage_dir"`

	MinIO MinIOConfig `toml:"minio"`
	Kafka KafkaConfig `toml:"kafka"`

	GitHubClientID     string `toml:"github_client_id"`
	GitHubClientSecret string `toml:"github_client_secret"`
	GitHubCallbackURL  string `toml:"github_callback_url"`
}

type MinIOConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	PublicURL string `toml:"public_url"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:          8080,
		DBPath:        "data/pisure.db",
		PublicBaseURL: "http://localhost:8080",
		MaxUploadMB:   50,
		LogLevel:      "info",
		StorageDriver: StorageLocal,
		StorageDir:    "data/media",
		MinIO: MinIOConfig{
			Bucket: "assets",
		},
		Kafka: KafkaConfig{
			Topic: "pisure.moderation",
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = strings.TrimRight(cfg.PublicBaseURL, "/") + "/auth/github/callback"
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid MAX_UPLOAD_MB %q: %w", v, err)
		}
		c.MaxUploadMB = mb
	}
	if v := getenv("SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid SECURE_COOKIES %q: %w", v, err)
		}
		c.SecureCookies = b
	}
	if v := getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid MINIO_USE_SSL %q: %w", v, err)
		}
		c.MinIO.UseSSL = b
	}

	str("DB_PATH", &c.DBPath)
	str("JWT_SECRET", &c.JWTSecret)
	list("ADMIN_EMAILS", &c.AdminEmails)
	str("PUBLIC_BASE_URL", &c.PublicBaseURL)
	list("CORS_ORIGINS", &c.CORSOrigins)
	str("LOG_LEVEL", &c.LogLevel)
	str("STORAGE_DRIVER", &c.StorageDriver)
	str("STORAGE_DIR", &c.StorageDir)
	str("MINIO_ENDPOINT", &c.MinIO.Endpoint)
	str("MINIO_ACCESS_KEY", &c.MinIO.AccessKey)
	str("MINIO_SECRET_KEY", &c.MinIO.SecretKey)
	str("MINIO_BUCKET", &c.MinIO.Bucket)
	str("MINIO_PUBLIC_URL", &c.MinIO.PublicURL)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("GITHUB_CLIENT_ID", &c.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	str("GITHUB_CALLBACK_URL", &c.GitHubCallbackURL)

	return nil
}

// Validate reports the first setting that would stop the server from working.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("config: MAX_UPLOAD_MB must be positive")
	}
	switch c.StorageDriver {
	case StorageLocal:
		if c.StorageDir == "" {
			return errors.New("config: STORAGE_DIR is required for local storage")
		}
	case StorageMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" || c.MinIO.Bucket == "" {
			return errors.New("config: MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_BUCKET are required for minio storage")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
