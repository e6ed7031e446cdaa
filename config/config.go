package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	surgerr "surgrag/pkg/errors"
)

const (
	FileName = "surgrag.yaml"
	DataDir  = ".surgrag"
)

// Config holds all configuration for surgrag.
type Config struct {
	Records   RecordsConfig   `yaml:"records"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Context   ContextConfig   `yaml:"context"`
	Import    ImportConfig    `yaml:"import"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RecordsConfig points at the authoritative report store.
type RecordsConfig struct {
	Path string `yaml:"path"` // relative paths resolve against the project dir
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	Backend    string `yaml:"backend"` // "bolt", "sqlitevec", "memory"
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	BatchSize  int    `yaml:"batch_size"`
	PageSize   int    `yaml:"page_size"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // "hashing", "openai", "ollama"
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"` // Environment variable for API key
	Dimension         int     `yaml:"dimension"` // 0 = provider default for the model
	MaxChars          int     `yaml:"max_chars"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK         int `yaml:"top_k"`
	CacheSize    int `yaml:"cache_size"` // 0 disables the query cache
	CacheTTLSecs int `yaml:"cache_ttl_secs"`
}

// ContextConfig holds few-shot context assembly configuration.
type ContextConfig struct {
	TopK     int `yaml:"top_k"`
	MaxChars int `yaml:"max_chars"`
}

// ImportConfig holds bulk import configuration.
type ImportConfig struct {
	Includes         []string `yaml:"includes"`
	Excludes         []string `yaml:"excludes"`
	MinChars         int      `yaml:"min_chars"`
	DefaultSpecialty string   `yaml:"default_specialty"`
	Source           string   `yaml:"source"`
	CSVSource        string   `yaml:"csv_source"`
	CSVSpecialties   []string `yaml:"csv_specialties"`
	Workers          int      `yaml:"workers"`
	MoveTo           string   `yaml:"move_to"` // imported files are moved here when set
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Records: RecordsConfig{
			Path: filepath.Join(DataDir, "reports.db"),
		},
		Index: IndexConfig{
			Backend:    "bolt",
			Path:       filepath.Join(DataDir, "index.db"),
			Collection: "medical_reports",
			BatchSize:  100,
			PageSize:   500,
		},
		Embedding: EmbeddingConfig{
			Provider:    "hashing",
			Model:       "hashing-v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxChars:    100000,
			TimeoutSecs: 60,
		},
		Retrieve: RetrieveConfig{
			TopK:         3,
			CacheSize:    128,
			CacheTTLSecs: 300,
		},
		Context: ContextConfig{
			TopK:     3,
			MaxChars: 3000,
		},
		Import: ImportConfig{
			Includes:         []string{"**/*.txt"},
			Excludes:         []string{"**/.git/**", "imported/**"},
			MinChars:         50,
			DefaultSpecialty: "Surgery",
			Source:           "Bulk Import",
			CSVSource:        "MTSamples/Kaggle",
			CSVSpecialties:   []string{"Surgery", "General Surgery", "Gastroenterology"},
			Workers:          4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, surgerr.Wrap(err, surgerr.CodeConfigLoadReadFailure, "read config",
			surgerr.Field("path", path))
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeConfigParseInvalidFormat, "parse config",
			surgerr.Field("path", path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for surgrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	invalid := func(field string, value any) error {
		return surgerr.New(surgerr.CodeConfigValidateInvalidValue,
			fmt.Sprintf("invalid %s: %v", field, value), surgerr.Field("field", field))
	}

	switch strings.ToLower(c.Index.Backend) {
	case "bolt", "sqlitevec", "memory":
	default:
		return invalid("index.backend", c.Index.Backend)
	}
	if c.Index.Collection == "" {
		return invalid("index.collection", c.Index.Collection)
	}
	if c.Index.BatchSize <= 0 {
		return invalid("index.batch_size", c.Index.BatchSize)
	}
	if c.Index.PageSize <= 0 {
		return invalid("index.page_size", c.Index.PageSize)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "hashing", "openai", "ollama":
	default:
		return invalid("embedding.provider", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return invalid("embedding.dimension", c.Embedding.Dimension)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return invalid("embedding.requests_per_second", c.Embedding.RequestsPerSecond)
	}

	if c.Retrieve.TopK <= 0 {
		return invalid("retrieve.top_k", c.Retrieve.TopK)
	}
	if c.Context.TopK <= 0 {
		return invalid("context.top_k", c.Context.TopK)
	}
	if c.Context.MaxChars <= 0 {
		return invalid("context.max_chars", c.Context.MaxChars)
	}
	if c.Import.Workers <= 0 {
		return invalid("import.workers", c.Import.Workers)
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

// ResolvePath makes p absolute relative to the project dir.
func ResolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// EnsureDataDir ensures the .surgrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDir), 0755)
}
