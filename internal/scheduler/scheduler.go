package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a unit of background work. The context is cancelled only on runner
// shutdown; a started job otherwise runs to completion.
type Job func(ctx context.Context)

// Scheduler is the capability the orchestrator depends on: run a callable at
// a given time, at most once per job identifier. An id stays taken from
// Schedule until the job function returns, so a slow job blocks a second
// registration under the same id just like a pending one does.
type Scheduler interface {
	// Schedule registers job under jobID to run at runAt. When the id is
	// already taken, replace=false keeps the existing job and returns
	// false. replace=true cancels a pending job and registers the new one;
	// a running job finishes undisturbed but its id passes to the new
	// registration, which lets a job reschedule itself from inside its own
	// run.
	Schedule(jobID string, runAt time.Time, replace bool, job Job) bool

	// Cancel removes a pending job. In-flight jobs are not interrupted.
	Cancel(jobID string) bool
}

// Runner is an in-process Scheduler backed by timers. Jobs execute on their
// own goroutines, never on the caller's.
type Runner struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	jobs    map[string]*pendingJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

type pendingJob struct {
	timer   *time.Timer
	running bool
}

func NewRunner(logger zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger: logger.With().Str("component", "scheduler").Logger(),
		jobs:   make(map[string]*pendingJob),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Runner) Schedule(jobID string, runAt time.Time, replace bool, job Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}

	if existing, ok := r.jobs[jobID]; ok {
		if !replace {
			return false
		}
		if !existing.running {
			existing.timer.Stop()
			r.wg.Done()
		}
		// A running job keeps its own wg slot and cleans up after itself;
		// dropping the map entry hands the id to the new registration.
		delete(r.jobs, jobID)
	}

	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}

	r.wg.Add(1)
	p := &pendingJob{}
	p.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		// A replaced or cancelled job may still fire; the map tells us
		// whether this registration is the live one. Done for a dead
		// registration was already called by Cancel/Schedule/Stop.
		if r.jobs[jobID] != p {
			r.mu.Unlock()
			return
		}
		// The entry stays in the map for the whole execution so the id
		// remains taken until the job function returns.
		p.running = true
		r.mu.Unlock()

		defer func() {
			r.mu.Lock()
			if r.jobs[jobID] == p {
				delete(r.jobs, jobID)
			}
			r.mu.Unlock()
			r.wg.Done()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().Str("job_id", jobID).Any("panic", rec).Msg("job panicked")
			}
		}()

		r.logger.Debug().Str("job_id", jobID).Msg("running scheduled job")
		job(r.ctx)
	})
	r.jobs[jobID] = p

	r.logger.Info().Str("job_id", jobID).Time("run_at", runAt).Msg("scheduled job")
	return true
}

func (r *Runner) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.jobs[jobID]
	if !ok || p.running {
		return false
	}
	p.timer.Stop()
	delete(r.jobs, jobID)
	r.wg.Done()

	r.logger.Info().Str("job_id", jobID).Msg("cancelled job")
	return true
}

// Pending reports whether the given id is taken, by a job waiting to run or
// one currently executing.
func (r *Runner) Pending(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[jobID]
	return ok
}

// Stop cancels all pending jobs and waits for in-flight jobs to finish, up
// to the context deadline. The runner accepts no further work afterwards.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	for id, p := range r.jobs {
		// In-flight jobs own their wg slot and remove themselves.
		if p.running {
			continue
		}
		p.timer.Stop()
		delete(r.jobs, id)
		r.wg.Done()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Give up waiting; signal in-flight jobs via the base context.
		r.cancel()
		return ctx.Err()
	}
	r.cancel()
	return nil
}
