package syncjob

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler wraps cron-based jobs. A job still running when its next tick fires
// is not started twice.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler builds a scheduler logging through zap.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
}

// ScheduleInterval registers a periodic job every given duration.
func (s *Scheduler) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval < time.Second {
		return 0, fmt.Errorf("interval must be at least one second, got %s", interval)
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %s", interval), job)
}

// ScheduleRuns registers runner.Run every interval. Each run derives from baseCtx
// and is bounded by timeout when positive.
func (s *Scheduler) ScheduleRuns(baseCtx context.Context, interval, timeout time.Duration, runner *Runner) (cron.EntryID, error) {
	return s.ScheduleInterval(interval, func() {
		ctx := baseCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		// Run logs and records its own failures.
		_, _ = runner.Run(ctx)
	})
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
