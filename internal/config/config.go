// Package config loads and validates CortexDB gateway configuration.
//
// Configuration is a single YAML document. Environment variables referenced
// as ${VAR} (or $VAR) are expanded before decoding, so secrets such as
// DATABASE_URL or MINIO_SECRET_KEY stay out of the file itself. Unknown keys
// are rejected.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the CortexDB gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Minio      MinioConfig      `yaml:"minio"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Auth       AuthConfig       `yaml:"auth"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadHeaderTimeout bounds how long the server waits for request
	// headers. Default: 5s.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout is the graceful drain window on SIGTERM.
	// Default: 30s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres control-plane connection.
type DatabaseConfig struct {
	// URL is the Postgres DSN. Usually set via ${DATABASE_URL}.
	URL string `yaml:"url"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// RunMigrations controls whether embedded migrations are applied on
	// startup. Default: true.
	RunMigrations *bool `yaml:"run_migrations"`
}

// QdrantConfig configures the vector store gRPC client.
type QdrantConfig struct {
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port. Default: 6334.
	Port int `yaml:"port"`

	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// MinioConfig configures the object store client.
type MinioConfig struct {
	// Endpoint is host:port, no scheme. Default: localhost:9000.
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`

	// PresignTTL is the expiry for presigned GET URLs returned alongside
	// file fields. Default: 1h.
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// EmbeddingsConfig configures the default embedding provider, used when a
// collection does not bind a registered provider.
type EmbeddingsConfig struct {
	// Provider is "openai" or "gemini". Default: "openai".
	Provider string `yaml:"provider"`

	// APIKey is the provider API key. Usually ${OPENAI_API_KEY} or
	// ${GEMINI_API_KEY}.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (optional, OpenAI only).
	BaseURL string `yaml:"base_url"`

	// Model is the embedding model. Defaults: "text-embedding-3-small"
	// for OpenAI, "text-embedding-004" for Gemini.
	Model string `yaml:"model"`

	// VisionModel is the Gemini model used for image description and OCR
	// fallback. Default: "gemini-1.5-flash".
	VisionModel string `yaml:"vision_model"`

	// VisionAPIKey is the Gemini key backing vision calls, usually
	// ${GEMINI_API_KEY}. Falls back to APIKey when the provider is gemini;
	// vision extraction is disabled when no key resolves.
	VisionAPIKey string `yaml:"vision_api_key"`
}

// AuthConfig configures API-key authentication.
type AuthConfig struct {
	// CacheTTL is how long an authenticated key stays cached. Default: 5m.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSweepInterval is how often expired cache entries are swept.
	// Default: 1m.
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval"`

	// BootstrapKey seeds the first admin key when the api_keys table has
	// none. Usually ${CORTEXDB_ADMIN_KEY}; a key is generated when empty.
	BootstrapKey string `yaml:"bootstrap_key"`
}

// ChunkingConfig sets global text chunking defaults. Collections may
// override both per schema config.
type ChunkingConfig struct {
	// Size is the chunk window in tokens. Default: 512.
	Size int `yaml:"size"`

	// Overlap is the token overlap between consecutive chunks. Default: 50.
	Overlap int `yaml:"overlap"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Environment    string  `yaml:"environment"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	Insecure       bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes after environment expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if err == io.EOF {
			// Empty file: all defaults.
			cfg = &Config{}
		} else {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and secrets
// pulled from the conventional environment variables.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Minio.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.Minio.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Embeddings.VisionAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Auth.BootstrapKey = os.Getenv("CORTEXDB_ADMIN_KEY")
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.RunMigrations == nil {
		t := true
		cfg.Database.RunMigrations = &t
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Minio.Endpoint == "" {
		cfg.Minio.Endpoint = "localhost:9000"
	}
	if cfg.Minio.PresignTTL == 0 {
		cfg.Minio.PresignTTL = time.Hour
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.Model == "" {
		switch cfg.Embeddings.Provider {
		case "gemini":
			cfg.Embeddings.Model = "text-embedding-004"
		default:
			cfg.Embeddings.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embeddings.VisionModel == "" {
		cfg.Embeddings.VisionModel = "gemini-1.5-flash"
	}
	if cfg.Auth.CacheTTL == 0 {
		cfg.Auth.CacheTTL = 5 * time.Minute
	}
	if cfg.Auth.CacheSweepInterval == 0 {
		cfg.Auth.CacheSweepInterval = time.Minute
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 512
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "cortexdb"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate checks values a default cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}
	switch c.Embeddings.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("embeddings.provider must be %q or %q, got %q", "openai", "gemini", c.Embeddings.Provider)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Size < 1 {
		return fmt.Errorf("chunking.size must be >= 1 and chunking.overlap >= 0")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}
