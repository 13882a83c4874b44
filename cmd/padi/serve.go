package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/sipadi/padi/internal/api"
	"github.com/sipadi/padi/internal/bus"
	"github.com/sipadi/padi/internal/cache"
	"github.com/sipadi/padi/internal/certainty"
	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/quota"
	"github.com/sipadi/padi/internal/repository"
	"github.com/sipadi/padi/internal/rules"
	"github.com/sipadi/padi/internal/treatment"
	"github.com/sipadi/padi/internal/verdict"
	"github.com/sipadi/padi/internal/worker"
)

// retentionInterval is how often serve deletes expired history.
const retentionInterval = 24 * time.Hour

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting padi",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"advisor", cfg.Treatment.Advisor,
		"async_treatment", cfg.Treatment.Async,
	)

	if cfg.Tracing.Propagate {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	if err := ensureKnowledgeBase(ctx, repo, cfg.Engine.KnowledgeBase); err != nil {
		return err
	}

	catalog, err := rules.NewCatalog(ctx, func(ctx context.Context) (*rules.Snapshot, error) {
		return rules.LoadSnapshot(ctx, repo)
	})
	if err != nil {
		return err
	}

	engine, err := certainty.NewEngine(certainty.DefaultPolicy().WithOverrides(cfg.Engine))
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	gate, err := rules.NewGate(cfg.Engine.Gate)
	if err != nil {
		return fmt.Errorf("failed to compile gate: %w", err)
	}
	slog.Info("engine initialized", "gate", gate.Expression())

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	advisor, err := treatment.New(cfg.Treatment)
	if err != nil {
		return fmt.Errorf("failed to initialize treatment advisor: %w", err)
	}

	guard := quota.NewGuard(repo, cacheImpl, cfg.Limits)
	svc := verdict.NewService(verdict.Deps{
		Engine:  engine,
		Catalog: catalog,
		Gate:    gate,
		Guard:   guard,
		Store:   repo,
		Advisor: advisor,
		Bus:     busImpl,
	}, verdict.Options{
		Async:   cfg.Treatment.Async,
		Visible: time.Duration(cfg.Limits.HistoryVisibleDays) * 24 * time.Hour,
	})

	if cfg.Treatment.Async {
		w := worker.NewWorker(busImpl, repo, advisor)
		if err := w.Start(worker.Config{}); err != nil {
			return fmt.Errorf("failed to start treatment worker: %w", err)
		}
		defer w.Stop()
	}

	srv := api.NewServer(cfg, api.Deps{
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Catalog: catalog,
		Verdict: svc,
		Guard:   guard,
		Version: Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		sweepHistory(gctx, guard, repo, retentionInterval)
		return nil
	})

	slog.Info("padi is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	err = g.Wait()
	slog.Info("padi shutdown complete")
	return err
}

// ensureKnowledgeBase seeds an empty store from path, or from the built-in
// knowledge base when path is empty.
func ensureKnowledgeBase(ctx context.Context, repo *repository.SQLRepository, path string) error {
	existing, err := repo.ListSymptoms(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect knowledge base: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	kb, err := loadKnowledgeBase(path)
	if err != nil {
		return err
	}
	stats, err := rules.Seed(ctx, repo, kb)
	if err != nil {
		return fmt.Errorf("failed to seed knowledge base: %w", err)
	}
	slog.Info("knowledge base seeded",
		"source", kbSource(path),
		"symptoms", stats.Symptoms,
		"diseases", stats.Diseases,
		"rules", stats.Rules,
	)
	return nil
}

// sweepHistory deletes expired history every interval until ctx ends.
func sweepHistory(ctx context.Context, guard *quota.Guard, repo domain.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cleanupHistory(ctx, guard, repo); err != nil {
				slog.Error("history cleanup failed", "error", err)
			}
		}
	}
}

// cleanupHistory removes diagnoses older than the retention period.
func cleanupHistory(ctx context.Context, guard *quota.Guard, repo domain.Repository) (int64, error) {
	cutoff, ok := guard.RetentionCutoff(ctx)
	if !ok {
		slog.Info("history retention disabled")
		return 0, nil
	}
	deleted, err := repo.DeleteHistoryBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("history cleaned up", "deleted", deleted, "before", cutoff)
	return deleted, nil
}

func loadKnowledgeBase(path string) (*rules.KnowledgeBase, error) {
	if path == "" {
		return rules.DefaultKnowledgeBase(), nil
	}
	kb, err := rules.LoadKnowledgeBase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base %s: %w", path, err)
	}
	return kb, nil
}

func kbSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
