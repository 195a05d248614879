// Package service is the boundary the importer, exporter and CLI call into.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"personalrag/internal/domain"
	"personalrag/internal/logger"
	"personalrag/internal/retrieval"
	"personalrag/internal/vectorstore"
	"personalrag/internal/workflow"
)

const rollbackTimeout = 30 * time.Second

// ErrNoEmbedder is returned by Import when no embedding backend is configured.
var ErrNoEmbedder = fmt.Errorf("%w: no embedding backend configured", domain.ErrConfiguration)

// Service ties the embedder, the tiered store and the generation workflow
// together. embedder may be nil; imports then fail and retrieval is empty.
type Service struct {
	chunker     domain.Chunker
	embedder    domain.Embedder
	store       *vectorstore.FallbackStore
	builder     *retrieval.Builder
	workflow    *workflow.Workflow
	retrieval   retrieval.Options
	concurrency int
	log         *zap.Logger
}

type Options struct {
	Retrieval   retrieval.Options
	Concurrency int
}

func New(chunker domain.Chunker, embedder domain.Embedder, store *vectorstore.FallbackStore, wf *workflow.Workflow, builder *retrieval.Builder, opts Options, log *zap.Logger) *Service {
	return &Service{
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		builder:     builder,
		workflow:    wf,
		retrieval:   opts.Retrieval,
		concurrency: opts.Concurrency,
		log:         logger.OrNop(log).Named("service"),
	}
}

// Import embeds doc and stores it. Statements and profiles longer than the
// section budget are stored as one item per section; the returned id is the
// document id the sections share as SourceID.
func (s *Service) Import(ctx context.Context, doc domain.Document) (string, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return "", fmt.Errorf("%w: empty document", domain.ErrInvalidRequest)
	}
	category, err := domain.ParseCategory(string(doc.Category))
	if err != nil {
		return "", err
	}
	doc.Category = category
	if s.embedder == nil {
		return "", ErrNoEmbedder
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	sections := []domain.Section{{Index: 0, Text: strings.TrimSpace(doc.Text)}}
	if doc.Category != domain.CategoryEssay && s.chunker != nil {
		sections = s.chunker.Split(doc)
	}
	texts := make([]string, len(sections))
	for i, sec := range sections {
		texts[i] = sec.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embed %s: %w", doc.ID, err)
	}

	themes := doc.Themes
	if len(themes) == 0 {
		themes = retrieval.DeriveThemes(doc.Title + " " + doc.Text)
	}
	stored := make([]string, 0, len(sections))
	for i, sec := range sections {
		id := doc.ID
		if len(sections) > 1 {
			id = fmt.Sprintf("%s#%d", doc.ID, sec.Index)
		}
		item := domain.EmbeddedItem{
			ID:        id,
			Text:      sec.Text,
			Embedding: vectors[i],
			Metadata: domain.Metadata{
				Category: doc.Category,
				Outcome:  doc.Outcome,
				Title:    doc.Title,
				Themes:   themes,
				SourceID: doc.ID,
				Section:  sec.Index,
			},
		}
		if _, err := s.store.Add(ctx, item); err != nil {
			s.rollback(ctx, doc.Category, stored)
			return "", fmt.Errorf("store %s: %w", id, err)
		}
		stored = append(stored, id)
	}
	s.log.Info("document imported",
		zap.String("id", doc.ID),
		zap.String("category", string(doc.Category)),
		zap.Int("sections", len(sections)))
	return doc.ID, nil
}

// rollback removes the sections of a partially imported document so a failed
// import leaves nothing retrievable behind.
func (s *Service) rollback(ctx context.Context, category domain.Category, ids []string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	for _, id := range ids {
		if err := s.store.Delete(ctx, category, id); err != nil {
			s.log.Warn("rollback incomplete", zap.String("id", id), zap.Error(err))
		}
	}
	s.log.Info("partial import rolled back", zap.Strings("ids", ids))
}

// ImportFiles imports every .txt or .md file matched by the glob patterns
// in paths. Ids derive from the file path so re-importing a file upserts it.
func (s *Service) ImportFiles(ctx context.Context, paths []string, category domain.Category, outcome domain.Outcome) ([]string, error) {
	var ids []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			ext := strings.ToLower(filepath.Ext(m))
			if ext != ".txt" && ext != ".md" {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return ids, err
			}
			title := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
			id, err := s.Import(ctx, domain.Document{
				ID:       hashString(m),
				Title:    title,
				Text:     string(data),
				Category: category,
				Outcome:  outcome,
			})
			if err != nil {
				return ids, fmt.Errorf("%s: %w", m, err)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no .txt or .md documents found", domain.ErrInvalidRequest)
	}
	return ids, nil
}

// Search embeds query and returns the best matches in one category. Without
// an embedder the result is empty.
func (s *Service) Search(ctx context.Context, category domain.Category, query string, limit int, filter domain.Filter) ([]domain.Match, error) {
	if s.embedder == nil {
		return []domain.Match{}, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, category, vec, limit, filter)
}

// Retrieve builds a retrieval context with the service defaults when opts is
// nil.
func (s *Service) Retrieve(ctx context.Context, query string, opts *retrieval.Options) (*retrieval.Context, error) {
	o := s.retrieval
	if opts != nil {
		o = *opts
	}
	return s.builder.Build(ctx, query, o)
}

// Generate runs one request to COMPLETE or ERROR.
func (s *Service) Generate(ctx context.Context, req workflow.Request) *workflow.Result {
	return s.workflow.Run(ctx, req)
}

// GenerateAll runs independent requests concurrently and returns results in
// request order.
func (s *Service) GenerateAll(ctx context.Context, reqs []workflow.Request) []*workflow.Result {
	return s.workflow.RunAll(ctx, reqs, s.concurrency)
}

// Stats reports item counts per tier.
func (s *Service) Stats(ctx context.Context) []vectorstore.TierStats {
	return s.store.AllStats(ctx)
}

// Clear removes every item from every tier.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("clear incomplete", zap.Error(err))
		return err
	}
	s.log.Info("all tiers cleared")
	return nil
}

// Close waits for background mirror writes and releases the tiers.
func (s *Service) Close() error {
	return s.store.Close()
}

// IsConfigurationError reports whether err is fatal configuration trouble.
func IsConfigurationError(err error) bool {
	return errors.Is(err, domain.ErrConfiguration)
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
