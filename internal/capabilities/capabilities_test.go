package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"personalrag/internal/config"
)

func TestResolve(t *testing.T) {
	tests := map[string]struct {
		mutate func(cfg *config.AppConfig)
		env    map[string]string
		check  func(t *testing.T, caps Capabilities)
	}{
		"defaults": {
			check: func(t *testing.T, caps Capabilities) {
				assert.Equal(t, "local", caps.Embedder)
				assert.Equal(t, RemoteNone, caps.Remote)
				assert.True(t, caps.LocalStore)
				assert.True(t, caps.InMemory)
				assert.False(t, caps.HasGenerator())
				assert.Empty(t, caps.Missing)
			},
		},
		"embedder-disabled": {
			mutate: func(cfg *config.AppConfig) { cfg.Embedder.Type = "none" },
			check: func(t *testing.T, caps Capabilities) {
				assert.False(t, caps.HasEmbedder())
			},
		},
		"openai-embedder-without-key": {
			mutate: func(cfg *config.AppConfig) {
				cfg.Embedder.Type = "openai"
				cfg.Embedder.OpenAI = &config.HTTPBackendConfig{APIKeyEnv: "PERSONALRAG_TEST_MISSING_KEY"}
			},
			check: func(t *testing.T, caps Capabilities) {
				assert.False(t, caps.HasEmbedder())
				assert.Len(t, caps.Missing, 1)
			},
		},
		"qdrant-remote": {
			mutate: func(cfg *config.AppConfig) {
				cfg.VectorStore.Remote = config.RemoteConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333"}}
			},
			check: func(t *testing.T, caps Capabilities) {
				assert.Equal(t, RemoteQdrant, caps.Remote)
			},
		},
		"pgvector-remote-with-dsn": {
			mutate: func(cfg *config.AppConfig) {
				cfg.VectorStore.Remote = config.RemoteConfig{Type: "supabase", PGVector: &config.PGVectorConfig{DSNEnv: "PERSONALRAG_TEST_DSN"}}
			},
			env: map[string]string{"PERSONALRAG_TEST_DSN": "postgres://localhost/test"},
			check: func(t *testing.T, caps Capabilities) {
				assert.Equal(t, RemotePGVector, caps.Remote)
			},
		},
		"generators": {
			mutate: func(cfg *config.AppConfig) {
				cfg.Generator.Primary = config.GeneratorBackendConfig{Type: "openai", OpenAI: &config.HTTPBackendConfig{APIKeyEnv: "PERSONALRAG_TEST_KEY"}}
				cfg.Generator.Fallback = config.GeneratorBackendConfig{Type: "ollama", Ollama: &config.HTTPBackendConfig{}}
			},
			env: map[string]string{"PERSONALRAG_TEST_KEY": "sk-test"},
			check: func(t *testing.T, caps Capabilities) {
				assert.Equal(t, "openai", caps.PrimaryGenerator)
				assert.Equal(t, "ollama", caps.FallbackGenerator)
				assert.True(t, caps.HasGenerator())
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := config.Default()
			cfg.VectorStore.Local.DataDir = t.TempDir()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			tt.check(t, Resolve(cfg))
		})
	}
}
