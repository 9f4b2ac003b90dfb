package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper is satisfied by *reservation.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweeper deletes expired sessions on a fixed interval. A run that
// overlaps the next tick is skipped, never stacked.
type SessionSweeper struct {
	sched    gocron.Scheduler
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewSessionSweeper(sweeper Sweeper, interval time.Duration, logger *slog.Logger) (*SessionSweeper, error) {
	const op = "worker.NewSessionSweeper"

	if interval <= 0 {
		interval = time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	w := &SessionSweeper{
		sched:    sched,
		sweeper:  sweeper,
		interval: interval,
		timeout:  interval,
		logger:   logger.With("component", "sweeper"),
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { w.runOnce(context.Background()) }),
		gocron.WithName("sweep-expired-sessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return w, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (w *SessionSweeper) Run(ctx context.Context) error {
	w.sched.Start()
	w.logger.Info("sweeper started", "interval", w.interval)

	<-ctx.Done()

	if err := w.sched.Shutdown(); err != nil {
		return fmt.Errorf("worker.SessionSweeper.Run: %w", err)
	}

	w.logger.Info("sweeper stopped")

	return nil
}

func (w *SessionSweeper) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.sweeper.SweepExpired(ctx)
	if err != nil {
		w.logger.Error("sweep failed", "err", err)
		return
	}

	if n > 0 {
		w.logger.Info("expired sessions swept", "count", n)
	}
}
