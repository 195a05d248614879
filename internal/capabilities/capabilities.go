// Package capabilities resolves, once at start-up, which optional backends
// the process can use. The resulting value is passed to constructors instead
// of being rediscovered at call sites.
package capabilities

import (
	"os"
	"strings"

	"personalrag/internal/config"
)

// RemoteKind identifies the remote vector database, if any.
type RemoteKind string

const (
	RemoteNone     RemoteKind = ""
	RemoteQdrant   RemoteKind = "qdrant"
	RemotePGVector RemoteKind = "pgvector"
)

// Capabilities is an immutable description of the usable backends.
type Capabilities struct {
	Embedder          string
	Remote            RemoteKind
	LocalStore        bool
	LocalDataDir      string
	InMemory          bool
	PrimaryGenerator  string
	FallbackGenerator string
	// Missing lists human-readable reasons for every backend that was
	// configured but could not be enabled.
	Missing []string
}

// HasEmbedder reports whether an embedding backend can be constructed.
func (c Capabilities) HasEmbedder() bool { return c.Embedder != "" }

// HasGenerator reports whether at least one generation backend is usable.
func (c Capabilities) HasGenerator() bool {
	return c.PrimaryGenerator != "" || c.FallbackGenerator != ""
}

// Resolve inspects cfg and the environment and returns the capability set.
func Resolve(cfg *config.AppConfig) Capabilities {
	var caps Capabilities

	caps.Embedder = resolveEmbedder(cfg.Embedder, &caps.Missing)
	caps.Remote = resolveRemote(cfg.VectorStore.Remote, &caps.Missing)

	if cfg.VectorStore.Local.Enabled {
		dir := cfg.VectorStore.Local.DataDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			caps.Missing = append(caps.Missing, "local store: data dir not writable: "+err.Error())
		} else {
			caps.LocalStore = true
			caps.LocalDataDir = dir
		}
	}
	caps.InMemory = cfg.VectorStore.InMemory

	caps.PrimaryGenerator = resolveGenerator("primary generator", cfg.Generator.Primary, &caps.Missing)
	caps.FallbackGenerator = resolveGenerator("fallback generator", cfg.Generator.Fallback, &caps.Missing)
	return caps
}

func resolveEmbedder(cfg config.EmbedderConfig, missing *[]string) string {
	switch strings.ToLower(cfg.Type) {
	case "local":
		return "local"
	case "openai":
		if cfg.OpenAI == nil {
			*missing = append(*missing, "embedder: openai section missing")
			return ""
		}
		if !envSet(cfg.OpenAI.APIKeyEnv) {
			*missing = append(*missing, "embedder: "+cfg.OpenAI.APIKeyEnv+" not set")
			return ""
		}
		return "openai"
	case "ollama":
		if cfg.Ollama == nil {
			*missing = append(*missing, "embedder: ollama section missing")
			return ""
		}
		return "ollama"
	case "none", "":
		return ""
	}
	*missing = append(*missing, "embedder: unknown type "+cfg.Type)
	return ""
}

func resolveRemote(cfg config.RemoteConfig, missing *[]string) RemoteKind {
	switch strings.ToLower(cfg.Type) {
	case "qdrant":
		if cfg.Qdrant == nil || cfg.Qdrant.URL == "" {
			*missing = append(*missing, "remote: qdrant url missing")
			return RemoteNone
		}
		return RemoteQdrant
	case "pgvector", "supabase":
		if cfg.PGVector == nil || !envSet(cfg.PGVector.DSNEnv) {
			*missing = append(*missing, "remote: pgvector dsn not set")
			return RemoteNone
		}
		return RemotePGVector
	case "":
		return RemoteNone
	}
	*missing = append(*missing, "remote: unknown type "+cfg.Type)
	return RemoteNone
}

func resolveGenerator(label string, cfg config.GeneratorBackendConfig, missing *[]string) string {
	switch strings.ToLower(cfg.Type) {
	case "openai":
		if cfg.OpenAI == nil || !envSet(cfg.OpenAI.APIKeyEnv) {
			*missing = append(*missing, label+": openai api key not set")
			return ""
		}
		return "openai"
	case "ollama":
		if cfg.Ollama == nil {
			*missing = append(*missing, label+": ollama section missing")
			return ""
		}
		return "ollama"
	case "":
		return ""
	}
	*missing = append(*missing, label+": unknown type "+cfg.Type)
	return ""
}

func envSet(name string) bool {
	return name != "" && os.Getenv(name) != ""
}
