package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":           "9090",
		"ADMIN_EMAILS":   "a@example.com, b@example.com ,",
		"STORAGE_DRIVER": "minio",
		"MINIO_USE_SSL":  "true",
		"KAFKA_BROKERS":  "k1:9092,k2:9092",
		"MAX_UPLOAD_MB":  "10",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AdminEmails)
	assert.Equal(t, StorageMinIO, cfg.StorageDriver)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	// untouched keys keep their defaults
	assert.Equal(t, "data/pisure.db", cfg.DBPath)
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) string {
		if k == "PORT" {
			return "eighty"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pisure.toml")
	content := `
port = 7000
jwt_secret = "file-secret-0123456789"
admin_emails = ["root@example.com"]

[minio]
bucket = "media"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ADMIN_EMAILS", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "file-secret-0123456789", cfg.JWTSecret)
	assert.Equal(t, []string{"root@example.com"}, cfg.AdminEmails)
	assert.Equal(t, "media", cfg.MinIO.Bucket)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHubCallbackURL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pisure.toml")
	require.NoError(t, os.WriteFile(path, []byte(`port = 7000`), 0o600))

	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.JWTSecret = "0123456789abcdef"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with secret", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "ftp" }, wantErr: true},
		{name: "minio without credentials", mutate: func(c *Config) { c.StorageDriver = StorageMinIO }, wantErr: true},
		{
			name: "minio complete",
			mutate: func(c *Config) {
				c.StorageDriver = StorageMinIO
				c.MinIO.Endpoint = "localhost:9000"
				c.MinIO.AccessKey = "key"
				c.MinIO.SecretKey = "secret"
			},
		},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
