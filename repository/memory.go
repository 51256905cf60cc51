package repository

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"sort"
	"sync"
	"time"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

// MemoryRepo is an in-process JobRepository with the same transition rules as the
// postgres repository. A single mutex stands in for row locks.
type MemoryRepo struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     int64
	files   map[uuid.UUID]entities.File
	jobs    map[uuid.UUID]*memoryJob
	outputs []entities.JobOutput
}

type memoryJob struct {
	job entities.Job
	seq int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		now:   time.Now,
		files: make(map[uuid.UUID]entities.File),
		jobs:  make(map[uuid.UUID]*memoryJob),
	}
}

// SetClock replaces the time source used for timestamps.
func (m *MemoryRepo) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryRepo) AddFile(file entities.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = m.now()
	}
	m.files[file.ID] = file
}

func (m *MemoryRepo) ClaimNextQueuedJob(ctx context.Context) (*entities.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClaimTransient, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *memoryJob
	for _, j := range m.jobs {
		if j.job.Status != constant.JobStatusQueued {
			continue
		}
		if next == nil || j.job.CreatedAt.Before(next.job.CreatedAt) ||
			(j.job.CreatedAt.Equal(next.job.CreatedAt) && j.seq < next.seq) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	now := m.now()
	next.job.Status = constant.JobStatusProcessing
	next.job.StartedAt = &now
	next.job.LockedAt = &now
	next.job.UpdatedAt = now

	claimed := next.job
	return &claimed, nil
}

func (m *MemoryRepo) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return m.finish(id, func(job *entities.Job) {
		job.Status = constant.JobStatusSucceeded
	})
}

func (m *MemoryRepo) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	return m.finish(id, func(job *entities.Job) {
		job.Status = constant.JobStatusFailed
		job.Error = &message
		job.Attempts++
	})
}

func (m *MemoryRepo) finish(id uuid.UUID, apply func(job *entities.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.job.Status != constant.JobStatusProcessing {
		return fmt.Errorf("%w: %s", ErrJobNotProcessing, id)
	}
	now := m.now()
	apply(&j.job)
	j.job.FinishedAt = &now
	j.job.UpdatedAt = now
	return nil
}

func (m *MemoryRepo) AppendOutput(_ context.Context, output *entities.JobOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.outputs {
		if existing.StoragePath == output.StoragePath {
			return fmt.Errorf("duplicate storage path %q", output.StoragePath)
		}
	}
	if output.ID == uuid.Nil {
		output.ID = uuid.New()
	}
	if output.Meta == nil {
		output.Meta = entities.Meta{}
	}
	output.CreatedAt = m.now()
	m.outputs = append(m.outputs, *output)
	return nil
}

func (m *MemoryRepo) FailStaleJobs(_ context.Context, olderThan time.Duration) ([]*entities.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-olderThan)
	message := fmt.Sprintf("stale lock: no terminal status within %s", olderThan)
	var failed []*entities.Job
	for _, j := range m.jobs {
		if j.job.Status != constant.JobStatusProcessing || j.job.LockedAt == nil || !j.job.LockedAt.Before(cutoff) {
			continue
		}
		j.job.Status = constant.JobStatusFailed
		j.job.Error = &message
		j.job.Attempts++
		j.job.FinishedAt = &now
		j.job.UpdatedAt = now
		job := j.job
		failed = append(failed, &job)
	}
	return failed, nil
}

func (m *MemoryRepo) FindFileById(_ context.Context, id uuid.UUID) (*entities.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	return &file, nil
}

func (m *MemoryRepo) FindJobById(_ context.Context, id uuid.UUID) (*entities.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	job := j.job
	job.Outputs = nil
	for _, out := range m.outputs {
		if out.JobId == id {
			job.Outputs = append(job.Outputs, out)
		}
	}
	sort.SliceStable(job.Outputs, func(a, b int) bool {
		return job.Outputs[a].CreatedAt.Before(job.Outputs[b].CreatedAt)
	})
	return &job, nil
}

func (m *MemoryRepo) CreateJob(_ context.Context, job *entities.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("duplicate job id %s", job.ID)
	}
	now := m.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.Status == "" {
		job.Status = constant.JobStatusQueued
	}
	job.UpdatedAt = now
	m.seq++
	stored := *job
	stored.Outputs = nil
	m.jobs[job.ID] = &memoryJob{job: stored, seq: m.seq}
	return nil
}

func (m *MemoryRepo) AutoMigrate(context.Context) error {
	return nil
}
