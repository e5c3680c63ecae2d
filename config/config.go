// Package config loads and saves the YAML file that configures a lectern
// installation.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/search"
	"github.com/poiesic/lectern/storage"
)

// Store types.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"
)

// Defaults.
const (
	DefaultCollection    = "knowledge_base"
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultBatchSize     = 8
	DefaultLimit         = 10
	DefaultThreshold     = 0.7
	DefaultTimeout       = 600 * time.Second
	DefaultDocumentsDir  = "documents"
	DefaultBadgerPath    = "lectern-data"
	DefaultSQLitePath    = "lectern.db"
	DefaultQdrantHost    = "localhost"
	DefaultQdrantPort    = 6334
	DefaultAPIKeyEnv     = "OA_API"
	FallbackAPIKeyEnv    = "OPENAI_API_KEY"
	DefaultDedupPolicy   = "document"
	DefaultEntityName    = "Mother"
	DefaultEntityAliases = "mother"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the configuration file.
// A zero Dimension is discovered by embedding a probe text.
type Config struct {
	Collection string          `yaml:"collection"`
	Dimension  int             `yaml:"dimension"`
	Metric     string          `yaml:"metric"`
	Store      StoreConfig     `yaml:"store"`
	AI         AIConfig        `yaml:"ai"`
	Ingestion  IngestionConfig `yaml:"ingestion"`
	Search     SearchConfig    `yaml:"search"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	Type   string       `yaml:"type"`
	Path   string       `yaml:"path,omitempty"` // badger directory or sqlite file
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the connection details of a qdrant server.
type QdrantConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	UseTLS    bool   `yaml:"use_tls"`
}

// AIConfig configures the OpenAI-compatible services.
type AIConfig struct {
	EmbeddingHost  string        `yaml:"embedding_host"`
	GeneratorHost  string        `yaml:"generator_host"`
	EmbeddingModel string        `yaml:"embedding_model"`
	GeneratorModel string        `yaml:"generator_model"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Timeout        time.Duration `yaml:"timeout"`
}

// IngestionConfig configures document ingestion.
type IngestionConfig struct {
	DocumentsDir string `yaml:"documents_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	BatchSize    int    `yaml:"batch_size"`
	Dedup        string `yaml:"dedup"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	Limit     int            `yaml:"limit"`
	Threshold float32        `yaml:"threshold"`
	Entities  []EntityConfig `yaml:"entities"`
}

// EntityConfig names an entity and the informal forms that refer to it.
type EntityConfig struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Collection: DefaultCollection,
		Metric:     string(storage.MetricCosine),
		Store: StoreConfig{
			Type: StoreBadger,
			Qdrant: QdrantConfig{
				Host: DefaultQdrantHost,
				Port: DefaultQdrantPort,
			},
		},
		AI: AIConfig{
			EmbeddingHost:  ai.DefaultHost,
			GeneratorHost:  ai.DefaultHost,
			EmbeddingModel: ai.DefaultEmbeddingModel,
			GeneratorModel: ai.DefaultGeneratorModel,
			APIKeyEnv:      DefaultAPIKeyEnv,
			Timeout:        DefaultTimeout,
		},
		Ingestion: IngestionConfig{
			DocumentsDir: DefaultDocumentsDir,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			BatchSize:    DefaultBatchSize,
			Dedup:        DefaultDedupPolicy,
		},
		Search: SearchConfig{
			Limit:     DefaultLimit,
			Threshold: DefaultThreshold,
			Entities: []EntityConfig{
				{Canonical: DefaultEntityName, Aliases: []string{DefaultEntityAliases}},
			},
		},
	}
}

// Load reads a config from path. Keys missing from the file keep their
// default values. If the file does not exist, Load returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("%w: dimension must not be negative", ErrInvalidConfig)
	}
	if _, err := storage.ParseMetric(c.Metric); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Store.Type {
	case StoreBadger, StoreSQLite:
	case StoreQdrant:
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("%w: store.qdrant.host is required", ErrInvalidConfig)
		}
		if c.Store.Qdrant.Port <= 0 || c.Store.Qdrant.Port > math.MaxUint16 {
			return fmt.Errorf("%w: store.qdrant.port %d is out of range", ErrInvalidConfig, c.Store.Qdrant.Port)
		}
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type)
	}

	if c.AI.Timeout <= 0 {
		return fmt.Errorf("%w: ai.timeout must be positive", ErrInvalidConfig)
	}

	in := c.Ingestion
	if in.ChunkSize <= 0 {
		return fmt.Errorf("%w: ingestion.chunk_size must be positive", ErrInvalidConfig)
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		return fmt.Errorf("%w: ingestion.chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if in.BatchSize <= 0 {
		return fmt.Errorf("%w: ingestion.batch_size must be positive", ErrInvalidConfig)
	}
	if _, err := ingestion.ParseDedupPolicy(in.Dedup); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Search.Limit <= 0 {
		return fmt.Errorf("%w: search.limit must be positive", ErrInvalidConfig)
	}
	if math.IsNaN(float64(c.Search.Threshold)) {
		return fmt.Errorf("%w: search.threshold is not a number", ErrInvalidConfig)
	}
	for _, e := range c.Search.Entities {
		if e.Canonical == "" || len(e.Aliases) == 0 {
			return fmt.Errorf("%w: entity %q needs a canonical name and aliases", ErrInvalidConfig, e.Canonical)
		}
	}
	return nil
}

// StorePath returns the configured store path, or the store type's default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Type == StoreSQLite {
		return DefaultSQLitePath
	}
	return DefaultBadgerPath
}

// StoreMetric returns the parsed similarity metric.
func (c *Config) StoreMetric() storage.Metric {
	metric, err := storage.ParseMetric(c.Metric)
	if err != nil {
		return storage.MetricCosine
	}
	return metric
}

// Entities returns the configured entities in the form the search engine takes.
func (c *Config) Entities() []search.Entity {
	entities := make([]search.Entity, 0, len(c.Search.Entities))
	for _, e := range c.Search.Entities {
		entities = append(entities, search.Entity{Canonical: e.Canonical, Aliases: e.Aliases})
	}
	return entities
}

// APIKey returns the AI API key from the environment. The configured
// variable is tried first, then OPENAI_API_KEY.
func (c *Config) APIKey() string {
	return lookupEnv(c.AI.APIKeyEnv, FallbackAPIKeyEnv)
}

// QdrantAPIKey returns the qdrant API key from the environment, if configured.
func (c *Config) QdrantAPIKey() string {
	return lookupEnv(c.Store.Qdrant.APIKeyEnv)
}

// ProviderConfig returns the AI provider configuration.
func (c *Config) ProviderConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithAPIKey(c.APIKey()),
		ai.WithTimeout(c.AI.Timeout),
	)
}

func lookupEnv(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
