package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/reconcile"
)

const defaultRunTimeout = 2 * time.Minute

// Refresher runs one enhancement pass.
type Refresher interface {
	RefreshFromUpstream(ctx context.Context) reconcile.EnhanceResult
}

// Scheduler periodically re-enhances the ward collection from upstream.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	refresher  Refresher
	interval   time.Duration
	runTimeout time.Duration
	logger     *zap.Logger
}

// New creates a new Scheduler. An interval <= 0 disables it.
func New(refresher Refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	runTimeout := defaultRunTimeout
	if interval > 0 && interval < runTimeout {
		runTimeout = interval
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		refresher:  refresher,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens one interval after Start.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: refresh interval is zero; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().WaitForSchedule().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	res := s.refresher.RefreshFromUpstream(ctx)
	if res.Err != nil {
		s.logger.Warn("scheduler: refresh failed", zap.String("pass", res.PassID), zap.Error(res.Err))
		return
	}
	s.logger.Debug("scheduler: refresh completed",
		zap.String("pass", res.PassID),
		zap.Int("applied", res.Applied),
		zap.String("data_source", string(res.Source)),
	)
}

// Running reports whether the periodic job is active.
func (s *Scheduler) Running() bool {
	return s.scheduler.IsRunning()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}
