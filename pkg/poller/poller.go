// Package poller drives the claim loop: on every tick it claims at most one queued job
// and hands it to a Processor, never holding more than the configured number of jobs
// in flight.
package poller

import (
	"context"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"sync"
	"sync/atomic"
	"time"
	"worker-pipeline/config"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
	"worker-pipeline/repository"
)

// cancelGrace bounds how long Shutdown waits for cancelled jobs to record their status.
const cancelGrace = 5 * time.Second

type Processor interface {
	Process(ctx context.Context, job *entities.Job) constant.JobStatus
}

type Poller struct {
	repo      repository.JobRepository
	processor Processor

	interval   time.Duration
	staleAfter time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	grace      time.Duration

	max    int64
	sem    *semaphore.Weighted
	active atomic.Int64
	wg     sync.WaitGroup

	mu         sync.Mutex
	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

func New(repo repository.JobRepository, processor Processor, cfg config.Worker) *Poller {
	maxJobs := int64(cfg.MaxConcurrentJobs)
	if maxJobs < 1 {
		maxJobs = 1
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	sweepEvery := cfg.StaleJobTimeout / 2
	if sweepEvery < interval {
		sweepEvery = interval
	}

	return &Poller{
		repo:       repo,
		processor:  processor,
		interval:   interval,
		staleAfter: cfg.StaleJobTimeout,
		sweepEvery: sweepEvery,
		grace:      cancelGrace,
		max:        maxJobs,
		sem:        semaphore.NewWeighted(maxJobs),
	}
}

// Run polls until ctx is done. Dispatched jobs keep running after Run returns; use
// Shutdown to wait for them.
func (p *Poller) Run(ctx context.Context) error {
	p.jobContext(ctx)

	zerolog.Ctx(ctx).Info().
		Dur("poll_interval", p.interval).
		Int64("max_concurrent_jobs", p.max).
		Dur("stale_job_timeout", p.staleAfter).
		Msg("claim loop started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			zerolog.Ctx(ctx).Info().Int64("active_jobs", p.Active()).Msg("claim loop stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one claim cycle and reports whether a job was dispatched. Cycles are
// serialized by the caller; Run never overlaps them.
func (p *Poller) Poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	p.sweepStale(ctx)

	if !p.sem.TryAcquire(1) {
		zerolog.Ctx(ctx).Debug().Int64("active_jobs", p.Active()).Msg("concurrency ceiling reached")
		return false
	}

	job, err := p.repo.ClaimNextQueuedJob(ctx)
	if err != nil {
		p.sem.Release(1)
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to claim job")
		return false
	}
	if job == nil {
		p.sem.Release(1)
		return false
	}

	p.dispatch(ctx, job)
	return true
}

func (p *Poller) dispatch(ctx context.Context, job *entities.Job) {
	jobCtx := p.jobContext(ctx)
	p.active.Add(1)
	p.wg.Add(1)

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("job_type", string(job.JobType)).
		Int64("active_jobs", p.Active()).
		Msg("job claimed")

	go func() {
		defer func() {
			p.active.Add(-1)
			p.sem.Release(1)
			p.wg.Done()
		}()
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(ctx).Error().Str("job_id", job.ID.String()).Interface("panic", r).Msg("processor panicked")
			}
		}()

		p.processor.Process(jobCtx, job)
	}()
}

func (p *Poller) sweepStale(ctx context.Context) {
	if p.staleAfter <= 0 {
		return
	}
	now := time.Now()
	if !p.lastSweep.IsZero() && now.Sub(p.lastSweep) < p.sweepEvery {
		return
	}
	p.lastSweep = now

	failed, err := p.repo.FailStaleJobs(ctx, p.staleAfter)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to sweep stale jobs")
		return
	}
	for _, job := range failed {
		zerolog.Ctx(ctx).Warn().
			Str("job_id", job.ID.String()).
			Str("job_type", string(job.JobType)).
			Msg("stale job marked failed")
	}
}

// jobContext returns the context jobs run under. It keeps ctx's values but not its
// cancellation, so stopping the loop does not abort running jobs.
func (p *Poller) jobContext(ctx context.Context) context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobCtx == nil {
		p.jobCtx, p.cancelJobs = context.WithCancel(context.WithoutCancel(ctx))
	}
	return p.jobCtx
}

// Shutdown waits for in-flight jobs. When ctx expires first, running jobs are cancelled
// and given a short grace period to record their status before ctx's error is returned.
func (p *Poller) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		zerolog.Ctx(ctx).Warn().Int64("active_jobs", p.Active()).Msg("shutdown timeout, cancelling running jobs")
		select {
		case <-done:
		case <-time.After(p.grace):
			zerolog.Ctx(ctx).Error().Int64("active_jobs", p.Active()).Msg("cancelled jobs still running")
		}
		return ctx.Err()
	}
}

func (p *Poller) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelJobs != nil {
		p.cancelJobs()
	}
}

func (p *Poller) Active() int64 {
	return p.active.Load()
}

func (p *Poller) MaxConcurrentJobs() int64 {
	return p.max
}
