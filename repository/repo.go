package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"time"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrClaimTransient wraps any datastore failure while claiming. Nothing was claimed.
	ErrClaimTransient = errors.New("claim failed")
	// ErrJobNotProcessing is returned by terminal transitions when the row is not PROCESSING,
	// so a duplicate or late call leaves the job untouched.
	ErrJobNotProcessing = errors.New("job is not processing")
)

type JobRepository interface {
	ClaimNextQueuedJob(ctx context.Context) (*entities.Job, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	AppendOutput(ctx context.Context, output *entities.JobOutput) error
	FailStaleJobs(ctx context.Context, olderThan time.Duration) ([]*entities.Job, error)
	FindFileById(ctx context.Context, id uuid.UUID) (*entities.File, error)
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	CreateJob(ctx context.Context, job *entities.Job) error
	AutoMigrate(ctx context.Context) error
}

type repo struct {
	db *gorm.DB
}

// The CTE locks one QUEUED row and skips rows locked by concurrent claimers.
const claimNextQueuedJobSQL = `
WITH next AS (
	SELECT id FROM processing_jobs
	WHERE status = ?
	ORDER BY created_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE processing_jobs AS j
SET status = ?, started_at = now(), locked_at = now(), updated_at = now()
FROM next
WHERE j.id = next.id
RETURNING j.*`

const failStaleJobsSQL = `
UPDATE processing_jobs
SET status = ?,
    error = ?,
    finished_at = now(),
    updated_at = now(),
    attempts = attempts + 1
WHERE status = ?
  AND locked_at IS NOT NULL
  AND locked_at < now() - (?::float8 * interval '1 millisecond')
RETURNING *`

func NewRepo(db *sql.DB, debug bool) (JobRepository, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(level),
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) ClaimNextQueuedJob(ctx context.Context) (*entities.Job, error) {
	job := &entities.Job{}
	var claimed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Raw(claimNextQueuedJobSQL, constant.JobStatusQueued, constant.JobStatusProcessing).Scan(job)
		claimed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClaimTransient, err)
	}
	if claimed == 0 {
		return nil, nil
	}

	return job, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status": constant.JobStatusSucceeded,
	})
}

func (r *repo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":   constant.JobStatusFailed,
		"error":    message,
		"attempts": gorm.Expr("attempts + 1"),
	})
}

func (r *repo) finish(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["finished_at"] = gorm.Expr("now()")
	updates["updated_at"] = gorm.Expr("now()")
	res := r.db.WithContext(ctx).Model(&entities.Job{}).
		Where("id = ? AND status = ?", id, constant.JobStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotProcessing, id)
	}
	return nil
}

func (r *repo) AppendOutput(ctx context.Context, output *entities.JobOutput) error {
	if output.ID == uuid.Nil {
		output.ID = uuid.New()
	}
	if output.Meta == nil {
		output.Meta = entities.Meta{}
	}
	return r.db.WithContext(ctx).Create(output).Error
}

func (r *repo) FailStaleJobs(ctx context.Context, olderThan time.Duration) ([]*entities.Job, error) {
	var jobs []*entities.Job
	message := fmt.Sprintf("stale lock: no terminal status within %s", olderThan)
	err := r.db.WithContext(ctx).
		Raw(failStaleJobsSQL, constant.JobStatusFailed, message, constant.JobStatusProcessing, olderThan.Milliseconds()).
		Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) FindFileById(ctx context.Context, id uuid.UUID) (*entities.File, error) {
	file := &entities.File{}
	err := r.db.WithContext(ctx).First(file, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return file, nil
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.db.WithContext(ctx).
		Preload("Outputs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Outputs").Create(job).Error
}

func (r *repo) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&entities.File{}, &entities.Job{}, &entities.JobOutput{})
}
