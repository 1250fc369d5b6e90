package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PUBSEARCH_EMBEDDING_MODEL.
const EnvPrefix = "PUBSEARCH"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for pubsearch.
type Config struct {
	DataDir   string          `yaml:"data_dir" split_words:"true"`
	Index     IndexConfig     `yaml:"index" split_words:"true"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" split_words:"true"`
	Summary   SummaryConfig   `yaml:"summary" split_words:"true"`
	Embedding EmbeddingConfig `yaml:"embedding" split_words:"true"`
	Server    ServerConfig    `yaml:"server" split_words:"true"`
	Logging   LoggingConfig   `yaml:"logging" split_words:"true"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider" split_words:"true"` // "openai", "jina", "deepseek", "ollama", "hash"
	Model             string        `yaml:"model" split_words:"true"`
	BaseURL           string        `yaml:"base_url" split_words:"true"`
	APIKeyEnv         string        `yaml:"api_key_env" split_words:"true"` // Environment variable for API key
	Dimension         int           `yaml:"dimension" split_words:"true"`
	BatchSize         int           `yaml:"batch_size" split_words:"true"`
	MaxConcurrent     int           `yaml:"max_concurrent" split_words:"true"`
	RequestsPerSecond float64       `yaml:"requests_per_second" split_words:"true"`
	Timeout           time.Duration `yaml:"timeout" split_words:"true"`
}

// IndexConfig holds ingestion and index configuration.
type IndexConfig struct {
	Includes        []string      `yaml:"includes" split_words:"true"`
	Excludes        []string      `yaml:"excludes" split_words:"true"`
	ChunkSize       int           `yaml:"chunk_size" split_words:"true"`
	ChunkOverlap    int           `yaml:"chunk_overlap" split_words:"true"`
	MinSectionChars int           `yaml:"min_section_chars" split_words:"true"`
	ExcerptChars    int           `yaml:"excerpt_chars" split_words:"true"`
	KeepBuilds      int           `yaml:"keep_builds" split_words:"true"`
	LoadTimeout     time.Duration `yaml:"load_timeout" split_words:"true"`
	LockTimeout     time.Duration `yaml:"lock_timeout" split_words:"true"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	DefaultK     int           `yaml:"default_k" split_words:"true"`
	MinK         int           `yaml:"min_k" split_words:"true"`
	MaxK         int           `yaml:"max_k" split_words:"true"`
	CacheSize    int           `yaml:"cache_size" split_words:"true"`
	CacheTTL     time.Duration `yaml:"cache_ttl" split_words:"true"`
	QueryTimeout time.Duration `yaml:"query_timeout" split_words:"true"`
}

// SummaryConfig holds summarization budgets.
type SummaryConfig struct {
	AbstractChars int `yaml:"abstract_chars" split_words:"true"`
	FindingsChars int `yaml:"findings_chars" split_words:"true"`
	MaxChars      int `yaml:"max_chars" split_words:"true"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	AllowOrigin     string        `yaml:"allow_origin" split_words:"true"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Index: IndexConfig{
			Includes:        []string{"**/*.json"},
			Excludes:        []string{"**/.*/**", "**/index_info.json"},
			ChunkSize:       1200,
			ChunkOverlap:    250,
			MinSectionChars: 40,
			ExcerptChars:    300,
			KeepBuilds:      2,
			LoadTimeout:     2 * time.Minute,
			LockTimeout:     time.Second,
		},
		Retrieve: RetrieveConfig{
			DefaultK:     5,
			MinK:         1,
			MaxK:         50,
			CacheSize:    256,
			CacheTTL:     5 * time.Minute,
			QueryTimeout: 30 * time.Second,
		},
		Summary: SummaryConfig{
			AbstractChars: 500,
			FindingsChars: 300,
			MaxChars:      2000,
		},
		Embedding: EmbeddingConfig{
			Provider:          "ollama",
			Model:             "nomic-embed-text",
			APIKeyEnv:         "OPENAI_API_KEY",
			Dimension:         768,
			BatchSize:         64,
			MaxConcurrent:     1,
			RequestsPerSecond: 10,
			Timeout:           60 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowOrigin:     "*",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for pubsearch.yaml).
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"pubsearch.yaml", filepath.Join(".pubsearch", "config.yaml")} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv loads .env (if present) and overlays PUBSEARCH_* variables.
// Fields without a matching variable keep their current value.
func (c *Config) applyEnv() error {
	_ = godotenv.Load(".env")

	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("%w: index.chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("%w: index.chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	r := c.Retrieve
	if r.MinK < 1 || r.MinK > r.DefaultK || r.DefaultK > r.MaxK {
		return fmt.Errorf("%w: retrieve bounds must satisfy 1 <= min_k <= default_k <= max_k", ErrInvalidConfig)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding.batch_size must be positive", ErrInvalidConfig)
	}
	if c.Embedding.Provider == "" {
		return fmt.Errorf("%w: embedding.provider is required", ErrInvalidConfig)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CurrentPath returns the path of the pointer file naming the published build.
func CurrentPath(dataDir string) string {
	return filepath.Join(dataDir, "CURRENT")
}

// BuildsDir returns the directory holding index builds.
func BuildsDir(dataDir string) string {
	return filepath.Join(dataDir, "builds")
}

// BuildDir returns the directory of one index build.
func BuildDir(dataDir, buildID string) string {
	return filepath.Join(BuildsDir(dataDir), buildID)
}

// IndexDBPath returns the path to a build's index database.
func IndexDBPath(buildDir string) string {
	return filepath.Join(buildDir, "index.db")
}

// IndexInfoPath returns the path to a build's index descriptor.
func IndexInfoPath(buildDir string) string {
	return filepath.Join(buildDir, "index_info.json")
}

// PublicationsDir returns the directory of per-publication records in a build.
func PublicationsDir(buildDir string) string {
	return filepath.Join(buildDir, "publications")
}

// LockPath returns the path of the ingestion lock file.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "ingest.lock")
}

// EnsureDataDir ensures the data directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(BuildsDir(dir), 0755)
}
