package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
	"worker-pipeline/repository"
)

var (
	ErrInvalidJobType = errors.New("invalid job type")
	ErrNotFileOwner   = errors.New("file belongs to another user")
)

// SubmitService is the enqueue side of the pipeline.
type SubmitService interface {
	Submit(ctx context.Context, fileID, ownerID uuid.UUID, jobType string) (*entities.Job, error)
	Status(ctx context.Context, jobID uuid.UUID) (*entities.Job, error)
}

type submitService struct {
	repo repository.JobRepository
}

func NewSubmitService(repo repository.JobRepository) SubmitService {
	return &submitService{repo: repo}
}

func (s *submitService) Submit(ctx context.Context, fileID, ownerID uuid.UUID, jobType string) (*entities.Job, error) {
	parsed, ok := constant.ParseJobType(jobType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, jobType)
	}

	file, err := s.repo.FindFileById(ctx, fileID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if err != nil {
		return nil, err
	}
	if file.OwnerId != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrNotFileOwner, fileID)
	}

	job := &entities.Job{
		ID:       uuid.New(),
		FileId:   fileID,
		OwnerId:  ownerID,
		JobType:  parsed,
		Status:   constant.JobStatusQueued,
		Attempts: 0,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("file_id", fileID.String()).
		Str("job_type", string(parsed)).
		Msg("job queued")

	return job, nil
}

func (s *submitService) Status(ctx context.Context, jobID uuid.UUID) (*entities.Job, error) {
	return s.repo.FindJobById(ctx, jobID)
}
