package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aliendevit/minuteone/internal/api"
	"github.com/aliendevit/minuteone/internal/chips"
	"github.com/aliendevit/minuteone/internal/config"
	"github.com/aliendevit/minuteone/internal/delta"
	"github.com/aliendevit/minuteone/internal/extract"
	"github.com/aliendevit/minuteone/internal/guard"
	"github.com/aliendevit/minuteone/internal/ontology"
	"github.com/aliendevit/minuteone/internal/planpack"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and retention sweeper",
		Run:   runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	s := openStore(cfg)
	defer s.Close()

	manager := newManager(cfg, s, log)

	packs, err := planpack.LoadDir(cfg.PlanPacks.Dir)
	if err != nil {
		exitErr("load plan packs", err)
	}
	log.Info("plan packs loaded", zap.Int("count", len(packs)))

	guards := guard.New(s)
	if cfg.Guards.RenalCreatinineMax > 0 {
		guards.RenalDefault = cfg.Guards.RenalCreatinineMax
	}

	srv := api.New(cfg, api.Deps{
		Store:     s,
		Manager:   manager,
		Deltas:    delta.New(s),
		Guards:    guards,
		Packs:     packs,
		Extractor: newExtractor(cfg),
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error { return sweepLoop(ctx, cfg, manager, log) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		exitErr("serve", err)
	}
}

// sweepLoop runs the retention sweep on a fixed interval until shutdown.
func sweepLoop(ctx context.Context, cfg *config.Config, m *chips.Manager, log *zap.Logger) error {
	ticker := time.NewTicker(cfg.Store.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dismissed, removed, err := m.Sweep(ctx, cfg.Store.Retention)
			if err != nil {
				log.Warn("retention sweep failed", zap.Error(err))
				continue
			}
			if dismissed > 0 || removed > 0 {
				log.Info("retention sweep",
					zap.Int("chips_dismissed", dismissed),
					zap.Int("facts_removed", removed))
			}
		}
	}
}

func newExtractor(cfg *config.Config) extract.Extractor {
	if cfg.Extractor.Provider == "model" && cfg.Extractor.APIKey != "" {
		return extract.NewModelExtractor(cfg.Extractor.APIKey, cfg.Extractor.Model)
	}
	var provider ontology.Provider = ontology.NewLexicalProvider()
	if cfg.Extractor.OntologySource == "embedding" {
		provider = ontology.NewEmbeddingProvider(cfg.Extractor.EmbeddingURL, cfg.Extractor.APIKey, "")
	}
	return extract.NewRulesExtractor(provider)
}
