package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prismsocial/prism-server/internal/config"
	"github.com/prismsocial/prism-server/internal/usecase"
)

// Scheduler owns the background reconciliation loops. It is built and
// started by the composition root and stopped explicitly on shutdown;
// no hidden global state.
type Scheduler struct {
	reconcile *usecase.ReconcileUsecase
	view      *usecase.ViewUsecase
	interest  *usecase.InterestUsecase
	syncCfg   config.Sync
	feedCfg   config.Feed

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(
	reconcile *usecase.ReconcileUsecase,
	view *usecase.ViewUsecase,
	interest *usecase.InterestUsecase,
	syncCfg config.Sync,
	feedCfg config.Feed,
) *Scheduler {
	return &Scheduler{
		reconcile: reconcile,
		view:      view,
		interest:  interest,
		syncCfg:   syncCfg,
		feedCfg:   feedCfg,
	}
}

// Start launches the periodic loops. Each loop runs independently of
// request traffic; a slow cycle delays only its own next tick.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	s.wg.Add(3)
	go s.loop(ctx, s.syncCfg.Interval(), s.runSync)
	go s.loop(ctx, s.syncCfg.EphemeralEvery(), s.runEphemeral)
	go s.loop(ctx, s.syncCfg.HousekeepEvery(), s.runHousekeeping)

	slog.Info(
		"Scheduler started",
		slog.Duration("syncInterval", s.syncCfg.Interval()),
		slog.Duration("ephemeralEvery", s.syncCfg.EphemeralEvery()),
		slog.String("module", "scheduler"),
	)
}

// Stop cancels the loops and waits for in-flight cycles to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	results := s.reconcile.ForceReconcileAll(ctx)
	for library, result := range results {
		if result.NewCount > 0 || result.DeletedCount > 0 {
			slog.Info(
				"Library reconciled",
				slog.String("library", library),
				slog.Int("new", result.NewCount),
				slog.Int("deleted", result.DeletedCount),
				slog.String("module", "scheduler"),
			)
		}
	}
}

func (s *Scheduler) runEphemeral(ctx context.Context) {
	expired, err := s.reconcile.ExpireEphemeral(ctx)
	if err != nil {
		slog.Error(
			"Ephemeral expiry pass failed",
			slog.String("error", err.Error()),
			slog.String("module", "scheduler"),
		)
		return
	}
	if expired > 0 {
		slog.Info(
			"Expired ephemeral content",
			slog.Int64("count", expired),
			slog.String("module", "scheduler"),
		)
	}
}

func (s *Scheduler) runHousekeeping(ctx context.Context) {
	pruned, err := s.view.PruneHistory(ctx, s.feedCfg.HistoryRetention())
	if err != nil {
		slog.Error(
			"History pruning failed",
			slog.String("error", err.Error()),
			slog.String("module", "scheduler"),
		)
	} else if pruned > 0 {
		slog.Info(
			"Pruned view history",
			slog.Int64("count", pruned),
			slog.String("module", "scheduler"),
		)
	}

	decayed, err := s.interest.DecayLedgers(ctx, s.feedCfg.DecayFactor, s.feedCfg.DecayPeriod())
	if err != nil {
		slog.Error(
			"Ledger decay failed",
			slog.String("error", err.Error()),
			slog.String("module", "scheduler"),
		)
	} else if decayed > 0 {
		slog.Info(
			"Decayed ledger entries",
			slog.Int64("count", decayed),
			slog.String("module", "scheduler"),
		)
	}
}
