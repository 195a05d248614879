package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"personalrag/internal/capabilities"
	"personalrag/internal/chunker"
	"personalrag/internal/config"
	"personalrag/internal/domain"
	"personalrag/internal/embedding"
	"personalrag/internal/llm"
	"personalrag/internal/llm/ollama"
	"personalrag/internal/llm/openai"
	"personalrag/internal/logger"
	"personalrag/internal/retrieval"
	"personalrag/internal/summarizer"
	"personalrag/internal/vectorstore"
	"personalrag/internal/vectorstore/memory"
	"personalrag/internal/vectorstore/pgvector"
	"personalrag/internal/vectorstore/qdrant"
	"personalrag/internal/vectorstore/sqlite"
	"personalrag/internal/workflow"
)

// excerptWords caps each retrieved excerpt placed in a prompt.
const excerptWords = 120

// Build constructs a Service from cfg and the resolved capabilities. Backends
// that cannot be constructed are skipped and logged; only a failure to build
// any vector store tier is fatal.
func Build(ctx context.Context, cfg *config.AppConfig, caps capabilities.Capabilities, log *zap.Logger) (*Service, error) {
	log = logger.OrNop(log)
	for _, reason := range caps.Missing {
		log.Warn("backend disabled", zap.String("reason", reason))
	}

	var embedder domain.Embedder
	if caps.HasEmbedder() {
		p, err := embedding.New(caps, cfg.Embedder, log)
		if err != nil {
			log.Warn("embedding backend unavailable; retrieval disabled", zap.Error(err))
		} else {
			embedder = p
		}
	} else {
		log.Warn("no embedding backend configured; retrieval disabled")
	}

	dimension := cfg.Embedder.Dimension
	if embedder != nil {
		dimension = embedder.Dimension()
	}
	tiers, err := BuildTiers(ctx, cfg.VectorStore, caps, dimension, log)
	if err != nil {
		return nil, err
	}
	store := vectorstore.NewFallbackStore(log, tiers...)

	generator, err := BuildGenerator(caps, cfg.Generator, log)
	if err != nil {
		log.Warn("no generation backend available", zap.Error(err))
	}

	ropts := RetrievalOptions(cfg.Retrieval)
	builder := retrieval.NewBuilder(embedder, store, log)
	wf := workflow.New(workflow.Config{
		Tolerance:          cfg.Workflow.Tolerance,
		MaxAttempts:        cfg.Workflow.MaxAttempts,
		DefaultTargetWords: cfg.Workflow.DefaultTargetWords,
		Retrieval:          ropts,
		Timeout:            time.Duration(cfg.Workflow.TimeoutSecs) * time.Second,
	}, builder, generator, summarizer.NewFrequencySummarizer(excerptWords), log)

	return New(chunker.NewSectionChunker(cfg.Retrieval.SectionWords), embedder, store, wf, builder, Options{
		Retrieval:   ropts,
		Concurrency: cfg.Workflow.Concurrency,
	}, log), nil
}

// RetrievalOptions converts the retrieval config section.
func RetrievalOptions(cfg config.RetrievalConfig) retrieval.Options {
	return retrieval.Options{
		EssayCount:       cfg.EssayCount,
		ProfileCount:     cfg.ProfileCount,
		StatementCount:   cfg.StatementCount,
		MinScore:         cfg.MinScore,
		PreferWinners:    cfg.PreferWinners,
		FavorableOutcome: domain.Outcome(cfg.FavorableOutcome),
		BiasCategory:     domain.CategoryEssay,
	}
}

// BuildTiers returns the tier chain in fallback order: remote (behind a
// circuit breaker), local SQLite, then memory.
func BuildTiers(ctx context.Context, cfg config.VectorStoreConfig, caps capabilities.Capabilities, dimension int, log *zap.Logger) ([]vectorstore.Tier, error) {
	log = logger.OrNop(log)
	var tiers []vectorstore.Tier
	breaker := vectorstore.BreakerConfig{
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		OpenTimeout:      time.Duration(cfg.Breaker.OpenTimeoutSecs) * time.Second,
	}

	switch caps.Remote {
	case capabilities.RemoteQdrant:
		q := cfg.Remote.Qdrant
		var apiKey string
		if q.APIKeyEnv != "" {
			apiKey = os.Getenv(q.APIKeyEnv)
		}
		remote := qdrant.NewStorage(qdrant.Config{
			URL:              q.URL,
			APIKey:           apiKey,
			CollectionPrefix: q.CollectionPrefix,
			Timeout:          time.Duration(q.TimeoutSecs) * time.Second,
		})
		tiers = append(tiers, vectorstore.NewBreaker(remote, breaker, log))
	case capabilities.RemotePGVector:
		p := cfg.Remote.PGVector
		remote, err := pgvector.Open(os.Getenv(p.DSNEnv), pgvector.Config{
			TablePrefix: p.TablePrefix,
			Dimension:   dimension,
			Timeout:     time.Duration(p.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Warn("pgvector tier unavailable", zap.Error(err))
		} else {
			tiers = append(tiers, vectorstore.NewBreaker(remote, breaker, log))
		}
	}

	if caps.LocalStore {
		local, err := sqlite.Open(ctx, caps.LocalDataDir)
		if err != nil {
			log.Warn("local tier unavailable", zap.String("dir", caps.LocalDataDir), zap.Error(err))
		} else {
			tiers = append(tiers, local)
		}
	}
	if caps.InMemory {
		tiers = append(tiers, memory.NewStorage())
	}

	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no vector store tier could be built", domain.ErrConfiguration)
	}
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = t.Name()
	}
	log.Info("vector store tiers ready", zap.Strings("tiers", names))
	return tiers, nil
}

// BuildGenerator wraps the configured primary and fallback backends. When a
// fallback is available the primary makes a single attempt per call, so a
// throttled or failing primary hands over instead of retrying.
func BuildGenerator(caps capabilities.Capabilities, cfg config.GeneratorConfig, log *zap.Logger) (llm.Provider, error) {
	log = logger.OrNop(log)
	fallback, ferr := buildBackend(caps.FallbackGenerator, cfg.Fallback, true)
	primary, perr := buildBackend(caps.PrimaryGenerator, cfg.Primary, fallback == nil)
	if primary == nil && fallback == nil {
		return nil, errors.Join(llm.ErrNoProvider, perr, ferr)
	}
	if perr != nil {
		log.Warn("primary generator unavailable", zap.Error(perr))
	}
	if ferr != nil {
		log.Warn("fallback generator unavailable", zap.Error(ferr))
	}
	return llm.NewFallback(primary, fallback, log), nil
}

func buildBackend(kind string, cfg config.GeneratorBackendConfig, retry bool) (llm.Provider, error) {
	retries := func(n int) int {
		if !retry {
			return 0
		}
		return n
	}
	switch kind {
	case "openai":
		o := cfg.OpenAI
		p, err := openai.New(openai.Config{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries:  retries(o.MaxRetries),
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		o := cfg.Ollama
		return ollama.New(ollama.Config{
			BaseURL:     o.BaseURL,
			Model:       o.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries:  retries(o.MaxRetries),
		}), nil
	}
	return nil, nil
}
