package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/robfig/cron/v3"
)

// cronLogger adapts an apex logger to cron.Logger.
type cronLogger struct {
	log log.Interface
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

// Scheduler runs named jobs on cron schedules. A job never overlaps with itself
// and a panicking job is logged instead of crashing the process.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    log.Interface

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	running sync.WaitGroup
}

func New(logger log.Interface) *Scheduler {
	cl := cronLogger{log: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		ctx:    ctx,
		cancel: cancel,
		log:    logger,
		jobs:   map[string]cron.EntryID{},
	}
}

// Add schedules fn under name. fn receives a context cancelled by Stop.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	logger := s.log.WithField("job", name)
	id, err := s.cron.AddFunc(spec, func() {
		s.running.Add(1)
		defer s.running.Done()
		start := time.Now()
		logger.Info("Job started")
		fn(s.ctx)
		logger.WithField("duration", time.Since(start).String()).Info("Job finished")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
	}
	s.jobs[name] = id
	return nil
}

// Trigger runs a scheduled job now, through the same wrappers as a scheduled run.
// It blocks until the job returns, or returns at once if the job is already running.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not scheduled", name)
	}

	entry := s.cron.Entry(id)
	if entry.WrappedJob == nil {
		return fmt.Errorf("job %q has no runnable entry", name)
	}
	entry.WrappedJob.Run()
	return nil
}

// Next returns the next scheduled time of a job, zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()
	for _, name := range names {
		s.log.WithField("job", name).Infof("Next run: %s", s.Next(name).Format(time.RFC1123))
	}
}

// Stop stops scheduling, cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for running jobs: %w", ctx.Err())
	}
}
