package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

// Tests in this file need a disposable postgres database. Every test empties the
// job tables first.
func openTestRepo(t *testing.T) (*repo, *entities.File) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r, err := NewRepo(db, false)
	require.NoError(t, err)
	pg := r.(*repo)

	ctx := context.Background()
	require.NoError(t, pg.AutoMigrate(ctx))
	require.NoError(t, pg.db.Exec("TRUNCATE job_outputs, processing_jobs, files CASCADE").Error)

	file := &entities.File{
		ID:               uuid.New(),
		OwnerId:          uuid.New(),
		OriginalFilename: "exam.pdf",
		MimeType:         "application/pdf",
		Size:             1024,
		StoragePath:      "files/exam.pdf",
	}
	require.NoError(t, pg.db.Create(file).Error)
	return pg, file
}

func queue(t *testing.T, r *repo, file *entities.File, createdAt time.Time) *entities.Job {
	t.Helper()
	job := &entities.Job{
		FileId:    file.ID,
		OwnerId:   file.OwnerId,
		JobType:   constant.JobTypeExtract,
		Status:    constant.JobStatusQueued,
		CreatedAt: createdAt,
	}
	require.NoError(t, r.CreateJob(context.Background(), job))
	return job
}

func TestClaimNextQueuedJob_OldestFirst(t *testing.T) {
	r, file := openTestRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	j2 := queue(t, r, file, base.Add(2*time.Second))
	j1 := queue(t, r, file, base.Add(1*time.Second))
	queue(t, r, file, base.Add(3*time.Second))

	claimed, err := r.ClaimNextQueuedJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, j1.ID, claimed.ID)
	assert.Equal(t, constant.JobStatusProcessing, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)
	assert.NotNil(t, claimed.LockedAt)

	next, err := r.ClaimNextQueuedJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, j2.ID, next.ID)
}

func TestClaimNextQueuedJob_Empty(t *testing.T) {
	r, _ := openTestRepo(t)

	job, err := r.ClaimNextQueuedJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextQueuedJob_ConcurrentClaimersNeverShareAJob(t *testing.T) {
	r, file := openTestRepo(t)
	const jobs = 40
	for i := 0; i < jobs; i++ {
		queue(t, r, file, time.Now().Add(time.Duration(i)*time.Millisecond))
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := r.ClaimNextQueuedJob(context.Background())
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s returned %d times", id, n)
	}
}

func TestTerminalTransitions(t *testing.T) {
	r, file := openTestRepo(t)
	ctx := context.Background()

	t.Run("succeeded keeps attempts and is idempotent", func(t *testing.T) {
		job := queue(t, r, file, time.Now())
		_, err := r.ClaimNextQueuedJob(ctx)
		require.NoError(t, err)

		require.NoError(t, r.MarkSucceeded(ctx, job.ID))
		assert.ErrorIs(t, r.MarkSucceeded(ctx, job.ID), ErrJobNotProcessing)
		assert.ErrorIs(t, r.MarkFailed(ctx, job.ID, "late"), ErrJobNotProcessing)

		got, err := r.FindJobById(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, constant.JobStatusSucceeded, got.Status)
		assert.Equal(t, 0, got.Attempts)
		assert.Nil(t, got.Error)
		assert.NotNil(t, got.FinishedAt)
	})

	t.Run("failed increments attempts once", func(t *testing.T) {
		job := queue(t, r, file, time.Now())
		_, err := r.ClaimNextQueuedJob(ctx)
		require.NoError(t, err)

		require.NoError(t, r.MarkFailed(ctx, job.ID, "file not found"))
		assert.ErrorIs(t, r.MarkFailed(ctx, job.ID, "file not found"), ErrJobNotProcessing)

		got, err := r.FindJobById(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, constant.JobStatusFailed, got.Status)
		assert.Equal(t, 1, got.Attempts)
		require.NotNil(t, got.Error)
		assert.Equal(t, "file not found", *got.Error)
		assert.NotNil(t, got.FinishedAt)
	})

	t.Run("queued job cannot finish", func(t *testing.T) {
		job := queue(t, r, file, time.Now().Add(time.Hour))
		assert.ErrorIs(t, r.MarkSucceeded(ctx, job.ID), ErrJobNotProcessing)
	})
}

func TestAppendOutput_IsAppendOnly(t *testing.T) {
	r, file := openTestRepo(t)
	ctx := context.Background()
	job := queue(t, r, file, time.Now())

	for _, p := range []string{"jobs/a/TEXT_1_0", "jobs/a/TEXT_2_0"} {
		require.NoError(t, r.AppendOutput(ctx, &entities.JobOutput{
			JobId:       job.ID,
			OutputType:  constant.OutputTypeText,
			StoragePath: p,
			Meta:        entities.Meta{"mimeType": "application/pdf"},
		}))
	}
	assert.Error(t, r.AppendOutput(ctx, &entities.JobOutput{
		JobId:       job.ID,
		OutputType:  constant.OutputTypeText,
		StoragePath: "jobs/a/TEXT_1_0",
	}), "storage paths are unique")

	got, err := r.FindJobById(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.Outputs, 2)
	assert.Equal(t, "application/pdf", got.Outputs[0].Meta["mimeType"])
}

func TestFailStaleJobs(t *testing.T) {
	r, file := openTestRepo(t)
	ctx := context.Background()

	stale := queue(t, r, file, time.Now().Add(-time.Hour))
	fresh := queue(t, r, file, time.Now())
	_, err := r.ClaimNextQueuedJob(ctx)
	require.NoError(t, err)
	_, err = r.ClaimNextQueuedJob(ctx)
	require.NoError(t, err)
	require.NoError(t, r.db.Exec("UPDATE processing_jobs SET locked_at = now() - interval '1 hour' WHERE id = ?", stale.ID).Error)

	failed, err := r.FailStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, stale.ID, failed[0].ID)

	got, err := r.FindJobById(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)

	still, err := r.FindJobById(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.JobStatusProcessing, still.Status)
}

func TestFindFileById_NotFound(t *testing.T) {
	r, _ := openTestRepo(t)

	_, err := r.FindFileById(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
