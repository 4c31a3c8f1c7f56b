package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskFunc is one unit of periodic work. Errors are logged, never fatal;
// the task runs again on its next tick.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	run      TaskFunc
}

// Scheduler drives registered tasks on fixed intervals. Each task runs
// on its own goroutine and executes inline on its tick, so a slow run
// delays the next tick for that task instead of overlapping it. Tasks
// never block each other.
type Scheduler struct {
	log   zerolog.Logger
	tasks []task

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// New creates an empty Scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "scheduler").Logger()}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("scheduler: Add after Start")
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, run: fn})
}

// Start launches all registered tasks. It returns immediately; tasks run
// until the context is canceled. Call Wait to block on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("scheduler: Start called twice")
	}
	s.started = true

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.log.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")
}

// Wait blocks until every task loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log := s.log.With().Str("task", t.name).Dur("interval", t.interval).Logger()
	log.Info().Msg("task scheduled")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, t, log)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t task, log zerolog.Logger) {
	started := time.Now()
	if err := t.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("task run failed")
		return
	}
	log.Debug().Dur("elapsed", time.Since(started)).Msg("task run complete")
}
