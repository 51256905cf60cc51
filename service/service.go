package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"path"
	"strings"
	"time"
	"worker-pipeline/config"
	"worker-pipeline/constant"
	"worker-pipeline/dto"
	"worker-pipeline/entities"
	"worker-pipeline/pkg/rabbitmq"
	"worker-pipeline/pkg/storage"
	"worker-pipeline/repository"
	"worker-pipeline/stage"
)

var (
	ErrFileNotFound   = errors.New("file not found")
	ErrStageExecution = errors.New("stage execution failed")
)

// Service runs one processing attempt for a claimed job.
type Service interface {
	// Process always leaves the job in a terminal state when the store is reachable and
	// returns the status the row ends up in. When another writer finished the row first,
	// that writer's status is returned and published. When the store cannot be updated,
	// PROCESSING is returned and no event is published. Failures are never returned to
	// the caller.
	Process(ctx context.Context, job *entities.Job) constant.JobStatus
}

type service struct {
	repo      repository.JobRepository
	storage   storage.Gateway
	stages    *stage.Registry
	publisher rabbitmq.Publisher
	buckets   config.Storage
	now       func() time.Time
}

func NewService(
	repo repository.JobRepository,
	gateway storage.Gateway,
	stages *stage.Registry,
	publisher rabbitmq.Publisher,
	buckets config.Storage,
) Service {
	if publisher == nil {
		publisher = rabbitmq.NewNoopPublisher()
	}
	return &service{
		repo:      repo,
		storage:   gateway,
		stages:    stages,
		publisher: publisher,
		buckets:   buckets,
		now:       time.Now,
	}
}

func (s *service) Process(ctx context.Context, job *entities.Job) constant.JobStatus {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", job.ID.String()).
		Str("job_type", string(job.JobType)).
		Logger()
	ctx = logger.WithContext(ctx)
	started := s.now()
	logger.Info().Str("file_id", job.FileId.String()).Msg("processing job")

	outputs, err := s.run(ctx, job)

	// The outcome is recorded even if ctx was cancelled mid-run.
	statusCtx := context.WithoutCancel(ctx)
	event := dto.JobFinishedEvent{
		JobId:   job.ID,
		FileId:  job.FileId,
		OwnerId: job.OwnerId,
		JobType: job.JobType,
		Outputs: outputs,
	}

	if err != nil {
		logger.Error().Err(err).Int("outputs", len(outputs)).Msg("job failed")
		event.Status = constant.JobStatusFailed
		event.Error = err.Error()
		err = s.record(statusCtx, func(ctx context.Context) error {
			return s.repo.MarkFailed(ctx, job.ID, event.Error)
		})
	} else {
		event.Status = constant.JobStatusSucceeded
		err = s.record(statusCtx, func(ctx context.Context) error {
			return s.repo.MarkSucceeded(ctx, job.ID)
		})
		if err == nil {
			logger.Info().
				Int("outputs", len(outputs)).
				Dur("duration", s.now().Sub(started)).
				Msg("job completed")
		}
	}

	switch {
	case errors.Is(err, repository.ErrJobNotProcessing):
		// Another writer finished the row first, so report what it recorded.
		current, findErr := s.repo.FindJobById(statusCtx, job.ID)
		if findErr != nil {
			logger.Error().Err(findErr).Msg("failed to read job after rejected status update")
			return constant.JobStatusProcessing
		}
		logger.Warn().Str("status", string(current.Status)).Msg("job already left PROCESSING, status unchanged")
		if !current.Status.IsTerminal() {
			return current.Status
		}
		event.Status = current.Status
		event.Error = ""
		if current.Error != nil {
			event.Error = *current.Error
		}
	case err != nil:
		logger.Error().Err(err).Msg("failed to update job status")
		return constant.JobStatusProcessing
	}

	event.FinishedAt = s.now()
	s.notify(statusCtx, event)

	return event.Status
}

func (s *service) run(ctx context.Context, job *entities.Job) ([]dto.JobOutput, error) {
	fn, err := s.stages.Lookup(job.JobType)
	if err != nil {
		return nil, err
	}

	file, err := s.repo.FindFileById(ctx, job.FileId)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, job.FileId)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", job.FileId, err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", file.StoragePath).Msg("downloading source file")
	data, err := s.storage.Download(ctx, s.buckets.UploadsBucket, file.StoragePath)
	if err != nil {
		return nil, err
	}

	results, err := invoke(ctx, fn, data, file)
	if err != nil {
		return nil, err
	}

	// Outputs recorded before a later failure are kept.
	recorded := make([]dto.JobOutput, 0, len(results))
	for i, result := range results {
		out, err := s.persist(ctx, job, i, result)
		if err != nil {
			return recorded, err
		}
		recorded = append(recorded, out)
	}

	return recorded, nil
}

func invoke(ctx context.Context, fn stage.Func, data []byte, file *entities.File) (outputs []stage.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			outputs = nil
			err = fmt.Errorf("%w: panic: %v", ErrStageExecution, r)
		}
	}()

	outputs, err = fn(ctx, data, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageExecution, err)
	}

	for i, out := range outputs {
		if !out.Type.Valid() {
			return nil, fmt.Errorf("%w: output %d has unknown type %q", ErrStageExecution, i, string(out.Type))
		}
	}

	return outputs, nil
}

func (s *service) persist(ctx context.Context, job *entities.Job, index int, result stage.Output) (dto.JobOutput, error) {
	payload := result.Payload
	if payload == nil {
		meta := result.Meta
		if meta == nil {
			meta = entities.Meta{}
		}
		var err error
		if payload, err = json.Marshal(meta); err != nil {
			return dto.JobOutput{}, fmt.Errorf("%w: encode output %d: %w", ErrStageExecution, index, err)
		}
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = result.Type.ContentType()
	}

	objectPath := outputPath(job.ID.String(), result.Type, s.now(), index, result.PathHint)
	stored, err := s.storage.Upload(ctx, s.buckets.DerivativesBucket, objectPath, payload, contentType)
	if err != nil {
		return dto.JobOutput{}, err
	}

	err = s.repo.AppendOutput(ctx, &entities.JobOutput{
		JobId:       job.ID,
		OutputType:  result.Type,
		StoragePath: stored,
		Meta:        result.Meta,
	})
	if err != nil {
		return dto.JobOutput{}, fmt.Errorf("record output %s: %w", stored, err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", stored).Str("output_type", string(result.Type)).Msg("output stored")
	return dto.JobOutput{OutputType: result.Type, StoragePath: stored}, nil
}

// outputPath namespaces artifacts by job and output type. The timestamp and index keep
// paths unique across outputs of one run and across repeated runs of the same job.
func outputPath(jobID string, outputType constant.OutputType, at time.Time, index int, hint string) string {
	name := fmt.Sprintf("%s_%d_%d", outputType, at.UnixNano(), index)
	if base := path.Base(strings.ReplaceAll(hint, "\\", "/")); hint != "" && base != "." && base != "/" {
		name += "_" + base
	}
	return path.Join("jobs", jobID, name)
}

// record retries transient store failures. ErrJobNotProcessing is returned
// without retrying.
func (s *service) record(ctx context.Context, update func(ctx context.Context) error) error {
	operation := func() (struct{}, error) {
		err := update(ctx)
		if errors.Is(err, repository.ErrJobNotProcessing) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	return err
}

func (s *service) notify(ctx context.Context, event dto.JobFinishedEvent) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishJobFinished(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to publish job event")
	}
}
