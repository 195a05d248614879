package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"personalrag/internal/capabilities"
	"personalrag/internal/config"
	"personalrag/internal/domain"
	"personalrag/internal/logger"
	"personalrag/internal/render"
	"personalrag/internal/service"
	"personalrag/internal/workflow"
)

// app is the state shared by every sub-command once the root command has
// loaded configuration and built the service.
type app struct {
	cfgPath  string
	jsonMode bool
	log      *zap.Logger
	svc      *service.Service
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := newRootCommand(a)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.close()
		os.Exit(1)
	}
	a.close()
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "personalrag",
		Short: "Draft application essays from your own past writing",
		Long: `personalrag stores your past essays, statements and profile material as
embeddings and drafts new answers grounded in the most relevant of them,
iterating until the draft meets the requested length.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/personalrag/config.yaml)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "Output in JSON format")

	root.AddCommand(
		newImportCommand(a),
		newSearchCommand(a),
		newGenerateCommand(a),
		newStatsCommand(a),
		newClearCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	var cfg *config.AppConfig
	var err error
	if a.cfgPath == "" {
		cfg, a.cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(a.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a.log, err = logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.log.Debug("config loaded", zap.String("path", a.cfgPath))

	caps := capabilities.Resolve(cfg)
	a.svc, err = service.Build(ctx, cfg, caps, a.log)
	if err != nil {
		return err
	}
	return nil
}

func (a *app) close() {
	if a.svc != nil {
		if err := a.svc.Close(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) print(cmd *cobra.Command, data any, human string) error {
	if a.jsonMode {
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), human)
	return nil
}

func newImportCommand(a *app) *cobra.Command {
	var category, outcome string
	cmd := &cobra.Command{
		Use:   "import [file or glob ...]",
		Short: "Import .txt and .md documents into the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(category)
			if err != nil {
				return err
			}
			o, err := parseOutcome(outcome)
			if err != nil {
				return err
			}
			ids, err := a.svc.ImportFiles(cmd.Context(), args, c, o)
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"imported": ids}, fmt.Sprintf("Imported %d document(s).\n", len(ids)))
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "essay", "Category: essay, statement or profile")
	cmd.Flags().StringVarP(&outcome, "outcome", "o", "", "Historical outcome: won, lost or pending")
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	var category, outcome string
	var limit int
	var minScore float64
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search one category for text similar to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(category)
			if err != nil {
				return err
			}
			o, err := parseOutcome(outcome)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			matches, err := a.svc.Search(cmd.Context(), c, query, limit, domain.Filter{Outcome: o, MinScore: minScore})
			if err != nil {
				return err
			}
			return a.print(cmd, matches, render.Matches(matches, query))
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "essay", "Category: essay, statement or profile")
	cmd.Flags().StringVarP(&outcome, "outcome", "o", "", "Only return items with this outcome")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum similarity in [0,1]")
	return cmd
}

func newGenerateCommand(a *app) *cobra.Command {
	var descriptor string
	var questions []string
	var words int
	var verbose bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft answers to one or more application questions",
		Example: `  personalrag generate -d "Acme Foundation Scholarship" -q "Describe a challenge you overcame (500 words)"
  personalrag generate -d "Acme" -q "Why this program?" -q "Career goals in 250 words" --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(questions) == 0 {
				return fmt.Errorf("%w: at least one --question is required", domain.ErrInvalidRequest)
			}
			reqs := make([]workflow.Request, len(questions))
			for i, q := range questions {
				reqs[i] = workflow.Request{Descriptor: descriptor, Question: q, TargetWords: words}
			}

			var results []*workflow.Result
			if len(reqs) == 1 {
				results = []*workflow.Result{a.svc.Generate(cmd.Context(), reqs[0])}
			} else {
				results = a.svc.GenerateAll(cmd.Context(), reqs)
			}

			var human strings.Builder
			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
				}
				human.WriteString(render.Result(r, verbose))
				human.WriteString("\n")
			}
			if err := a.print(cmd, results, human.String()); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d run(s) failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&descriptor, "descriptor", "d", "", "Target the answers are written for, e.g. a scholarship or job title")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "Question to answer (repeatable)")
	cmd.Flags().IntVarP(&words, "words", "w", 0, "Target word count (default: parsed from the question, else the configured default)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the progress log of each run")
	_ = cmd.MarkFlagRequired("descriptor")
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per vector store tier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats := a.svc.Stats(cmd.Context())
			data := make([]map[string]any, len(stats))
			for i, s := range stats {
				data[i] = map[string]any{"name": s.Name, "kind": s.Kind.String(), "counts": s.Counts}
				if s.Err != nil {
					data[i]["error"] = s.Err.Error()
				}
			}
			return a.print(cmd, data, render.Stats(stats))
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored item from every tier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			if err := a.svc.Clear(cmd.Context()); err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"cleared": true}, "All tiers cleared.\n")
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the clear")
	return cmd
}

func parseOutcome(s string) (domain.Outcome, error) {
	switch o := domain.Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case domain.OutcomeNone, domain.OutcomeWon, domain.OutcomeLost, domain.OutcomePending:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidRequest, s)
}
