package sweeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/services"
)

const (
	reapLockKey = "reap"
	pollLockKey = "poll"
)

type Config struct {
	ReapSchedule   string
	PollSchedule   string
	PollStaleAfter time.Duration
	PollBatch      int
	LockTTL        time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ReapSchedule) == "" {
		c.ReapSchedule = "@every 1m"
	}
	if strings.TrimSpace(c.PollSchedule) == "" {
		c.PollSchedule = "@every 30s"
	}
	if c.PollStaleAfter <= 0 {
		c.PollStaleAfter = 2 * time.Minute
	}
	if c.PollBatch <= 0 {
		c.PollBatch = 50
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 50 * time.Second
	}
	return c
}

// Sweeper runs the stuck-job reaper and the poll fallback on cron schedules.
// A PollSchedule of "off" disables polling.
type Sweeper struct {
	log        *logger.Logger
	cfg        Config
	reaper     services.StuckJobReaper
	reconciler services.StatusReconciler
	locker     Locker
	cron       *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(baseLog *logger.Logger, cfg Config, reaper services.StuckJobReaper, reconciler services.StatusReconciler, locker Locker) (*Sweeper, error) {
	if reaper == nil {
		return nil, fmt.Errorf("sweeper: reaper required")
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	cfg = cfg.withDefaults()
	log := baseLog.With("component", "Sweeper")
	cl := cronLogger{log: log}
	s := &Sweeper{
		log:        log,
		cfg:        cfg,
		reaper:     reaper,
		reconciler: reconciler,
		locker:     locker,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: context.Background(),
	}
	if _, err := s.cron.AddFunc(cfg.ReapSchedule, func() { _, _ = s.RunReap(s.runContext()) }); err != nil {
		return nil, fmt.Errorf("sweeper: reap schedule %q: %w", cfg.ReapSchedule, err)
	}
	if reconciler != nil && !strings.EqualFold(cfg.PollSchedule, "off") {
		if _, err := s.cron.AddFunc(cfg.PollSchedule, func() { _, _ = s.RunPoll(s.runContext()) }); err != nil {
			return nil, fmt.Errorf("sweeper: poll schedule %q: %w", cfg.PollSchedule, err)
		}
	}
	return s, nil
}

func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("Sweeper started", "reap_schedule", s.cfg.ReapSchedule, "poll_schedule", s.cfg.PollSchedule)
}

// Stop halts scheduling and waits for running sweeps, up to ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("sweeper stop timed out")
	}
	cancel()
}

func (s *Sweeper) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunReap performs one reaper pass if this instance holds the sweep lock.
func (s *Sweeper) RunReap(ctx context.Context) (services.ReapResult, error) {
	release, ok := s.acquire(ctx, reapLockKey)
	if !ok {
		return services.ReapResult{}, nil
	}
	defer release()
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTTL)
	defer cancel()
	res, err := s.reaper.Reap(runCtx)
	if err != nil {
		s.log.Warn("reap sweep finished with errors", "reaped", res.ReapedCount, "error", err)
	}
	return res, err
}

// RunPoll pulls engine status for quiet processing generations.
func (s *Sweeper) RunPoll(ctx context.Context) (services.PollSummary, error) {
	if s.reconciler == nil {
		return services.PollSummary{}, nil
	}
	release, ok := s.acquire(ctx, pollLockKey)
	if !ok {
		return services.PollSummary{}, nil
	}
	defer release()
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTTL)
	defer cancel()
	sum, err := s.reconciler.PollStale(runCtx, s.cfg.PollStaleAfter, s.cfg.PollBatch)
	if err != nil {
		s.log.Warn("poll sweep failed", "error", err)
	}
	return sum, err
}

func (s *Sweeper) acquire(ctx context.Context, key string) (func(), bool) {
	release, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("sweep lock unavailable; running unlocked", "key", key, "error", err)
		return func() {}, true
	}
	if !ok {
		s.log.Debug("sweep lock held elsewhere; skipping", "key", key)
		return nil, false
	}
	return release, true
}

type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
