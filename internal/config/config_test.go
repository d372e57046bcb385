package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "gemini", cfg.Generation.Analysis.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Generation.Extraction.Model)
	assert.Equal(t, "file", cfg.Reference.Source)
	assert.Equal(t, "NELDA.pdf", cfg.Reference.Path)
	assert.Equal(t, "minio", cfg.Store.Driver)
	assert.Equal(t, 0, cfg.Pipeline.MaxConcurrent)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.DrainTimeout)
	assert.Equal(t, "https://api.cronjob.org/v1/jobs", cfg.Scheduler.APIURL)
	assert.Equal(t, 9, cfg.Scheduler.Hour)
	assert.Equal(t, 2, cfg.Scheduler.OffsetDays)
	assert.Equal(t, 5, cfg.Scheduler.BatchSize)
}

func TestLoadFromYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 8088
  write_timeout: 30s
  rate_limit:
    enabled: true
    rps: 2
log:
  level: debug
  format: console
generation:
  extraction:
    provider: openai
    model: o3-2025-04-16
store:
  driver: sqlite
sqlite:
  path: /tmp/nelda.db
pipeline:
  max_concurrent: 4
`
	require.NoError(t, os.WriteFile(p, []byte(yaml), 0o600))

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.InDelta(t, 2.0, cfg.Server.RateLimit.RPS, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "openai", cfg.Generation.Extraction.Provider)
	assert.Equal(t, "gemini", cfg.Generation.Analysis.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/nelda.db", cfg.SQLite.Path)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrent)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NELDA_SERVER_PORT", "9090")
	t.Setenv("NELDA_STORE_DRIVER", "postgres")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("CRONJOB_API_KEY", "c-key")
	t.Setenv("SERVER_URL", "https://nelda.example.org")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "g-key", cfg.Gemini.APIKey)
	assert.Equal(t, "c-key", cfg.Scheduler.APIKey)
	assert.Equal(t, "https://nelda.example.org", cfg.Scheduler.ServerURL)
}

func TestLoadPrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("NELDA_GEMINI_API_KEY", "prefixed")
	t.Setenv("GEMINI_API_KEY", "bare")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Gemini.APIKey)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("server: [unclosed"), 0o600))

	_, err := Load(p)
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Generation.Analysis = ModelConfig{Provider: "gemini", Model: "gemini-2.5-pro"}
	cfg.Generation.Extraction = ModelConfig{Provider: "gemini", Model: "gemini-2.5-pro"}
	cfg.Gemini.APIKey = "key"
	cfg.Store.Driver = "minio"
	cfg.Minio = MinioConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", BucketName: "b"}
	cfg.Reference = ReferenceConfig{Source: "file", Path: "NELDA.pdf"}
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing provider key", func(c *Config) { c.Gemini.APIKey = "" }},
		{"extraction provider without key", func(c *Config) { c.Generation.Extraction.Provider = "anthropic" }},
		{"unknown provider", func(c *Config) { c.Generation.Analysis.Provider = "llama" }},
		{"openai for analysis", func(c *Config) { c.Generation.Analysis.Provider = "openai"; c.OpenAI.APIKey = "k" }},
		{"minio without secret", func(c *Config) { c.Minio.SecretKey = "" }},
		{"mysql without user", func(c *Config) { c.Store.Driver = "mysql"; c.Database.Host = "db" }},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }},
		{"unknown reference source", func(c *Config) { c.Reference.Source = "http" }},
		{"empty reference path", func(c *Config) { c.Reference.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateSQLStores(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"
	cfg.Database = DatabaseConfig{Host: "db", User: "nelda", Name: "nelda"}
	assert.NoError(t, cfg.Validate())

	cfg.Store.Driver = "sqlite"
	cfg.SQLite.Path = "nelda.db"
	assert.NoError(t, cfg.Validate())
}

func TestValidateScheduler(t *testing.T) {
	cfg := &Config{Scheduler: SchedulerConfig{
		APIURL:    "https://api.cronjob.org/v1/jobs",
		APIKey:    "k",
		ServerURL: "http://localhost:5000",
		Hour:      9,
		BatchSize: 5,
	}}
	require.NoError(t, cfg.ValidateScheduler())

	cfg.Scheduler.Hour = 24
	assert.Error(t, cfg.ValidateScheduler())

	cfg.Scheduler.Hour = 9
	cfg.Scheduler.APIKey = ""
	assert.Error(t, cfg.ValidateScheduler())
}

func TestDSNs(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Host: "db", User: "u", Password: "p@ss", Name: "nelda", SSLMode: "disable"}}

	assert.Equal(t, "u:p@ss@tcp(db:3306)/nelda?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
	assert.Equal(t, "postgres://u:p%40ss@db:5432/nelda?sslmode=disable", cfg.PostgresDSN())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "chatty"}))
}
