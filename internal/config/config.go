package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HTTPBackendConfig holds connection details shared by OpenAI-compatible and
// Ollama backends.
type HTTPBackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Type is one of "local", "openai", "ollama" or "none". A zero Dimension
// selects the backend's default.
type EmbedderConfig struct {
	Type         string             `yaml:"type"`
	Dimension    int                `yaml:"dimension"`
	QueryPrefix  string             `yaml:"query_prefix,omitempty"`
	DocPrefix    string             `yaml:"document_prefix,omitempty"`
	CacheTTLSecs int                `yaml:"cache_ttl_secs"`
	BatchSize    int                `yaml:"batch_size"`
	OpenAI       *HTTPBackendConfig `yaml:"openai,omitempty"`
	Ollama       *HTTPBackendConfig `yaml:"ollama,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKeyEnv        string `yaml:"api_key_env,omitempty"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains connection details for a Postgres database with the
// pgvector extension (e.g. Supabase).
type PGVectorConfig struct {
	DSNEnv      string `yaml:"dsn_env"`
	TablePrefix string `yaml:"table_prefix"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RemoteConfig selects the remote tier. Type is "qdrant", "pgvector" or "".
type RemoteConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// LocalConfig configures the on-disk tier.
type LocalConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// BreakerConfig configures the circuit breaker around remote tiers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	OpenTimeoutSecs  int `yaml:"open_timeout_secs"`
}

// VectorStoreConfig configures the tier chain.
type VectorStoreConfig struct {
	Remote   RemoteConfig  `yaml:"remote"`
	Local    LocalConfig   `yaml:"local"`
	InMemory bool          `yaml:"in_memory"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// GeneratorBackendConfig selects one text-generation backend.
// Type is "openai", "ollama" or "" (disabled).
type GeneratorBackendConfig struct {
	Type        string             `yaml:"type"`
	Temperature float64            `yaml:"temperature"`
	MaxTokens   int                `yaml:"max_tokens"`
	OpenAI      *HTTPBackendConfig `yaml:"openai,omitempty"`
	Ollama      *HTTPBackendConfig `yaml:"ollama,omitempty"`
}

// GeneratorConfig holds the primary and fallback generation backends.
type GeneratorConfig struct {
	Primary  GeneratorBackendConfig `yaml:"primary"`
	Fallback GeneratorBackendConfig `yaml:"fallback"`
}

// WorkflowConfig configures the generation state machine.
type WorkflowConfig struct {
	Tolerance          int `yaml:"tolerance"`
	MaxAttempts        int `yaml:"max_attempts"`
	DefaultTargetWords int `yaml:"default_target_words"`
	Concurrency        int `yaml:"concurrency"`
	TimeoutSecs        int `yaml:"timeout_secs"`
}

// RetrievalConfig configures how much context is retrieved per request.
type RetrievalConfig struct {
	EssayCount       int     `yaml:"essay_count"`
	ProfileCount     int     `yaml:"profile_count"`
	StatementCount   int     `yaml:"statement_count"`
	MinScore         float64 `yaml:"min_score"`
	FavorableOutcome string  `yaml:"favorable_outcome"`
	PreferWinners    bool    `yaml:"prefer_winners"`
	SectionWords     int     `yaml:"section_words"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
	JSON     bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config bytes and fills in defaults.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/personalrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/personalrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	dir, err := defaultUserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultUserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "personalrag"), nil
}

// Default returns the built-in configuration: local embeddings, a local
// SQLite tier backed by an in-memory tier, and no generation backend.
func Default() *AppConfig {
	dataDir := "data"
	if dir, err := defaultUserDir(); err == nil {
		dataDir = filepath.Join(dir, "data")
	}
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "local", CacheTTLSecs: 600, BatchSize: 32},
		VectorStore: VectorStoreConfig{
			Local:    LocalConfig{Enabled: true, DataDir: dataDir},
			InMemory: true,
			Breaker:  BreakerConfig{FailureThreshold: 3, OpenTimeoutSecs: 30},
		},
		Workflow: WorkflowConfig{
			Tolerance:          10,
			MaxAttempts:        3,
			DefaultTargetWords: 500,
			Concurrency:        2,
			TimeoutSecs:        300,
		},
		Retrieval: RetrievalConfig{
			EssayCount:       3,
			ProfileCount:     3,
			StatementCount:   2,
			FavorableOutcome: "won",
			PreferWinners:    true,
			SectionWords:     250,
		},
		Log: LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "local"
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 32
	}
	if o := cfg.Embedder.OpenAI; o != nil {
		applyHTTPDefaults(o, "https://api.openai.com/v1", "OPENAI_API_KEY", "text-embedding-3-small")
	}
	if o := cfg.Embedder.Ollama; o != nil {
		applyHTTPDefaults(o, "http://localhost:11434", "", "nomic-embed-text")
	}
	if q := cfg.VectorStore.Remote.Qdrant; q != nil {
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "personal_"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if p := cfg.VectorStore.Remote.PGVector; p != nil {
		if p.DSNEnv == "" {
			p.DSNEnv = "PGVECTOR_DSN"
		}
		if p.TimeoutSecs == 0 {
			p.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Breaker.FailureThreshold <= 0 {
		cfg.VectorStore.Breaker.FailureThreshold = 3
	}
	if cfg.VectorStore.Breaker.OpenTimeoutSecs <= 0 {
		cfg.VectorStore.Breaker.OpenTimeoutSecs = 30
	}
	for _, g := range []*GeneratorBackendConfig{&cfg.Generator.Primary, &cfg.Generator.Fallback} {
		if g.Temperature == 0 {
			g.Temperature = 0.7
		}
		if g.OpenAI != nil {
			applyHTTPDefaults(g.OpenAI, "https://api.openai.com/v1", "OPENAI_API_KEY", "gpt-4o-mini")
		}
		if g.Ollama != nil {
			applyHTTPDefaults(g.Ollama, "http://localhost:11434", "", "llama3.1")
		}
	}
	if cfg.Workflow.Tolerance < 0 {
		cfg.Workflow.Tolerance = 10
	}
	if cfg.Workflow.MaxAttempts <= 0 {
		cfg.Workflow.MaxAttempts = 3
	}
	if cfg.Workflow.DefaultTargetWords <= 0 {
		cfg.Workflow.DefaultTargetWords = 500
	}
	if cfg.Workflow.Concurrency <= 0 {
		cfg.Workflow.Concurrency = 2
	}
	if cfg.Retrieval.FavorableOutcome == "" {
		cfg.Retrieval.FavorableOutcome = "won"
	}
	if cfg.Retrieval.SectionWords <= 0 {
		cfg.Retrieval.SectionWords = 250
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyHTTPDefaults(c *HTTPBackendConfig, baseURL, keyEnv, model string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = keyEnv
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}
