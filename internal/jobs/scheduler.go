// Package jobs runs the periodic maintenance work of the launchpad on cron
// schedules: price refresh, claim reconciliation and cleanup.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"aqua-launchpad/internal/observability"
)

// Func is one run of a job.
type Func func(ctx context.Context) error

// ErrUnknownJob is returned by RunNow for unregistered names.
var ErrUnknownJob = errors.New("unknown job")

// ErrAlreadyRunning is returned by RunNow when the job is mid-run.
var ErrAlreadyRunning = errors.New("job already running")

type job struct {
	name    string
	spec    string
	fn      Func
	timeout time.Duration
	running atomic.Bool
}

// Scheduler owns a cron instance and the jobs registered on it.
// A job never overlaps with itself; a tick that finds it running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("jobs")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger.Sugar()}),
		)),
		logger: logger,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers fn under name on a standard cron spec ("*/5 * * * *",
// "@every 30s"). An empty spec registers the job for RunNow only.
// A positive timeout bounds each run.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s registered twice", name)
	}
	j := &job{name: name, spec: spec, fn: fn, timeout: timeout}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.run(j) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	s.jobs[name] = j
	if spec == "" {
		s.logger.Info("job registered without schedule", zap.String("job", name))
	}
	return nil
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunNow runs a job synchronously on the caller's context.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !j.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer j.running.Store(false)
	return s.exec(ctx, j)
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// in-flight jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Strings("jobs", s.Names()))
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts scheduling, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(j *job) {
	if !j.running.CompareAndSwap(false, true) {
		observability.RecordJobRun(j.name, "skipped", 0)
		s.logger.Warn("job still running, tick skipped", zap.String("job", j.name))
		return
	}
	s.wg.Add(1)
	defer func() {
		j.running.Store(false)
		s.wg.Done()
	}()
	if s.ctx.Err() != nil {
		return
	}
	_ = s.exec(s.ctx, j)
}

func (s *Scheduler) exec(ctx context.Context, j *job) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	start := time.Now()
	err := j.fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		observability.RecordJobRun(j.name, "error", elapsed.Seconds())
		s.logger.Error("job failed", zap.String("job", j.name), zap.Duration("duration", elapsed), zap.Error(err))
		return err
	}
	observability.RecordJobRun(j.name, "ok", elapsed.Seconds())
	s.logger.Debug("job finished", zap.String("job", j.name), zap.Duration("duration", elapsed))
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
