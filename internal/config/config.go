package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Gemini     ProviderConfig   `yaml:"gemini" mapstructure:"gemini"`
	OpenAI     ProviderConfig   `yaml:"openai" mapstructure:"openai"`
	Anthropic  ProviderConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Reference  ReferenceConfig  `yaml:"reference" mapstructure:"reference"`
	Prompts    PromptsConfig    `yaml:"prompts" mapstructure:"prompts"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Minio      MinioConfig      `yaml:"minio" mapstructure:"minio"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	SQLite     SQLiteConfig     `yaml:"sqlite" mapstructure:"sqlite"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	CORSOrigins  []string        `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket. Off unless Enabled.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
	Burst   int     `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GenerationConfig picks the provider and model for each generation call.
type GenerationConfig struct {
	Analysis   ModelConfig `yaml:"analysis" mapstructure:"analysis"`
	Extraction ModelConfig `yaml:"extraction" mapstructure:"extraction"`
}

type ModelConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
}

type ProviderConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// ReferenceConfig locates the codebook. Source is "file" or "minio"; for
// minio, Path is the object key in the configured bucket.
type ReferenceConfig struct {
	Source   string `yaml:"source" mapstructure:"source"`
	Path     string `yaml:"path" mapstructure:"path"`
	MIMEType string `yaml:"mime_type" mapstructure:"mime_type"`
}

type PromptsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// StoreConfig selects the persistence backend: minio, mysql, postgres or sqlite.
type StoreConfig struct {
	Driver  string `yaml:"driver" mapstructure:"driver"`
	Migrate bool   `yaml:"migrate" mapstructure:"migrate"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey  string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey  string `yaml:"secret_key" mapstructure:"secret_key"`
	BucketName string `yaml:"bucket_name" mapstructure:"bucket_name"`
	Region     string `yaml:"region" mapstructure:"region"`
	UseSSL     bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Name     string `yaml:"name" mapstructure:"name"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig bounds background analyses. MaxConcurrent 0 means no bound.
type PipelineConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	DrainTimeout  time.Duration `yaml:"drain_timeout" mapstructure:"drain_timeout"`
}

// SchedulerConfig configures the cron job submitter.
type SchedulerConfig struct {
	APIURL     string        `yaml:"api_url" mapstructure:"api_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	ServerURL  string        `yaml:"server_url" mapstructure:"server_url"`
	Hour       int           `yaml:"hour" mapstructure:"hour"`
	OffsetDays int           `yaml:"offset_days" mapstructure:"offset_days"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
	JobDelay   time.Duration `yaml:"job_delay" mapstructure:"job_delay"`
	BatchDelay time.Duration `yaml:"batch_delay" mapstructure:"batch_delay"`
}

// envAliases are the bare variable names the deployment already uses.
var envAliases = map[string]string{
	"gemini.api_key":       "GEMINI_API_KEY",
	"openai.api_key":       "OPENAI_API_KEY",
	"anthropic.api_key":    "ANTHROPIC_API_KEY",
	"scheduler.api_key":    "CRONJOB_API_KEY",
	"scheduler.server_url": "SERVER_URL",
}

// Load reads configuration from an optional YAML file at path and from the
// environment (NELDA_ prefix, "." becomes "_").
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("NELDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := "NELDA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.rps", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("generation.analysis.provider", "gemini")
	v.SetDefault("generation.analysis.model", "gemini-2.5-pro")
	v.SetDefault("generation.extraction.provider", "gemini")
	v.SetDefault("generation.extraction.model", "gemini-2.5-pro")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("reference.source", "file")
	v.SetDefault("reference.path", "NELDA.pdf")
	v.SetDefault("reference.mime_type", "application/pdf")
	v.SetDefault("prompts.file", "")
	v.SetDefault("store.driver", "minio")
	v.SetDefault("store.migrate", true)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket_name", "nelda-analyses")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "nelda")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("sqlite.path", "nelda.db")
	v.SetDefault("pipeline.max_concurrent", 0)
	v.SetDefault("pipeline.drain_timeout", 10*time.Minute)
	v.SetDefault("scheduler.api_url", "https://api.cronjob.org/v1/jobs")
	v.SetDefault("scheduler.api_key", "")
	v.SetDefault("scheduler.server_url", "http://localhost:5000")
	v.SetDefault("scheduler.hour", 9)
	v.SetDefault("scheduler.offset_days", 2)
	v.SetDefault("scheduler.batch_size", 5)
	v.SetDefault("scheduler.job_delay", 500*time.Millisecond)
	v.SetDefault("scheduler.batch_delay", 5*time.Second)
}

// Validate checks that the selected providers and store have credentials.
func (c *Config) Validate() error {
	for stage, m := range map[string]ModelConfig{
		"analysis":   c.Generation.Analysis,
		"extraction": c.Generation.Extraction,
	} {
		key, err := c.ProviderKey(m.Provider)
		if err != nil {
			return eris.Wrapf(err, "config: generation.%s", stage)
		}
		if key == "" {
			return eris.Errorf("config: generation.%s: %s api key is not set", stage, m.Provider)
		}
	}

	// the analysis call carries the reference PDF, which the OpenAI adapter cannot attach
	if c.Generation.Analysis.Provider == "openai" {
		return eris.New("config: generation.analysis: openai cannot attach the reference document")
	}

	switch c.Store.Driver {
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.AccessKey == "" || c.Minio.SecretKey == "" || c.Minio.BucketName == "" {
			return eris.New("config: minio endpoint, access key, secret key and bucket are required")
		}
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			return eris.Errorf("config: %s host, user and name are required", c.Store.Driver)
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return eris.New("config: sqlite path is required")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	switch c.Reference.Source {
	case "file":
	case "minio":
		if c.Store.Driver != "minio" && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "") {
			return eris.New("config: reference source minio needs minio credentials")
		}
	default:
		return eris.Errorf("config: unknown reference source %q", c.Reference.Source)
	}
	if c.Reference.Path == "" {
		return eris.New("config: reference path is required")
	}
	return nil
}

// ValidateScheduler checks what the job submitter needs.
func (c *Config) ValidateScheduler() error {
	s := c.Scheduler
	if s.APIKey == "" {
		return eris.New("config: scheduler api key is not set (CRONJOB_API_KEY)")
	}
	if _, err := url.ParseRequestURI(s.APIURL); err != nil {
		return eris.Wrap(err, "config: scheduler api url")
	}
	if _, err := url.ParseRequestURI(s.ServerURL); err != nil {
		return eris.Wrap(err, "config: scheduler server url")
	}
	if s.Hour < 0 || s.Hour > 23 {
		return eris.Errorf("config: scheduler hour %d out of range", s.Hour)
	}
	if s.BatchSize <= 0 {
		return eris.New("config: scheduler batch size must be positive")
	}
	return nil
}

// ProviderKey returns the API key configured for a provider name.
func (c *Config) ProviderKey(provider string) (string, error) {
	switch provider {
	case "gemini":
		return c.Gemini.APIKey, nil
	case "openai":
		return c.OpenAI.APIKey, nil
	case "anthropic":
		return c.Anthropic.APIKey, nil
	}
	return "", eris.Errorf("unknown provider %q", provider)
}

// MySQLDSN builds a go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL.
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
