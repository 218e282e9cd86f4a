package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	"github.com/smallbiznis/studiosync/internal/metricspush"
	obsmetrics "github.com/smallbiznis/studiosync/internal/observability/metrics"
	pipelinedomain "github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/runlock"
	"github.com/smallbiznis/studiosync/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// JobImport is the only job the scheduler runs.
const JobImport = "import"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Pipeline pipelinedomain.Service
	Locker   runlock.Locker
	Import   *config.ImportConfigHolder
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Registry *prometheus.Registry         `optional:"true"`
	Pusher   metricspush.Pusher           `optional:"true"`
	Config   Config                       `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	pipeline pipelinedomain.Service
	locker   runlock.Locker
	imports  *config.ImportConfigHolder
	metrics  *obsmetrics.SchedulerMetrics
	registry *prometheus.Registry
	pusher   metricspush.Pusher

	// after is swapped in tests to drive the loop without sleeping.
	after func(time.Duration) <-chan time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Pipeline == nil || p.Locker == nil || p.Import == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		pipeline: p.Pipeline,
		locker:   p.Locker,
		imports:  p.Import,
		metrics:  p.Metrics,
		registry: p.Registry,
		pusher:   p.Pusher,
		after:    time.After,
	}, nil
}

func (s *Scheduler) interval() time.Duration {
	return s.imports.Get().Interval
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := &jobRun{
		job:       name,
		tickID:    correlation.ExtractCorrelationID(ctx),
		startedAt: start,
	}
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		// The run record is already finalized; the next tick starts from
		// the watermarks that did advance.
		s.logger(ctx).Warn("scheduler.job.timeout",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs the pipeline if this replica wins the run lock. A held lock
// is not an error: another replica is importing.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, _ := correlation.EnsureCorrelationID(parent)
	interval := s.interval()
	ttl := time.Duration(s.cfg.LockTTLFactor) * interval

	token, acquired, err := s.locker.TryLock(ctx, runlock.KeyImportRun, ttl)
	if err != nil {
		s.metrics.IncJobSkipped(JobImport, obsmetrics.SkipReasonLockErr)
		return fmt.Errorf("%s: acquire run lock: %w", JobImport, err)
	}
	if !acquired {
		s.metrics.IncJobSkipped(JobImport, obsmetrics.SkipReasonLockHeld)
		s.logger(ctx).Info("scheduler.job.skipped",
			zap.String("job", JobImport),
			zap.String("reason", obsmetrics.SkipReasonLockHeld),
		)
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), runlock.KeyImportRun, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.Error(err))
		}
	}()

	timeout := s.cfg.RunTimeout
	if timeout <= 0 {
		timeout = interval
	}
	err = s.runJob(ctx, JobImport, timeout, func(ctx context.Context) error {
		_, err := s.pipeline.Run(ctx, pipelinedomain.TriggerScheduled)
		return err
	})
	s.pushMetrics(ctx)
	return err
}

func (s *Scheduler) pushMetrics(ctx context.Context) {
	if s.pusher == nil || s.registry == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.pusher.Push(pushCtx, s.registry); err != nil {
		s.logger(ctx).Warn("scheduler.metrics.push_failed", zap.Error(err))
	}
}

// RunForever ticks until ctx is cancelled. A failed run is retried on the
// next tick; the interval is re-read each time so config reloads apply.
func (s *Scheduler) RunForever(ctx context.Context) {
	if s.cfg.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-s.after(s.cfg.InitialDelay):
		}
	}

	nextRun := s.clock.Now()
	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run.failed", zap.Error(err))
		}
		interval := s.interval()
		nextRun = nextRun.Add(interval)

		wait := nextRun.Sub(s.clock.Now())
		if wait < 0 {
			// Overran the interval; start again right away but keep the
			// schedule anchored to now so lag is not reported forever.
			nextRun = s.clock.Now()
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
	}
}
