package entities

import (
	"github.com/google/uuid"
	"time"
	"worker-pipeline/constant"
)

type Job struct {
	ID         uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	FileId     uuid.UUID          `json:"file_id" gorm:"type:uuid;not null;index:idx_processing_jobs_file_id"`
	OwnerId    uuid.UUID          `json:"owner_id" gorm:"type:uuid;not null;index:idx_processing_jobs_owner_id"`
	JobType    constant.JobType   `json:"job_type" gorm:"type:varchar(40);not null"`
	Status     constant.JobStatus `json:"status" gorm:"type:varchar(20);not null;default:'QUEUED';index:idx_processing_jobs_status_created,priority:1"`
	Attempts   int                `json:"attempts" gorm:"not null;default:0"`
	Error      *string            `json:"error" gorm:"type:text"`
	CreatedAt  time.Time          `json:"created_at" gorm:"type:timestamptz;not null;index:idx_processing_jobs_status_created,priority:2"`
	StartedAt  *time.Time         `json:"started_at" gorm:"type:timestamptz"`
	FinishedAt *time.Time         `json:"finished_at" gorm:"type:timestamptz"`
	LockedAt   *time.Time         `json:"locked_at" gorm:"type:timestamptz"`
	UpdatedAt  time.Time          `json:"updated_at" gorm:"type:timestamptz;not null"`

	Outputs []JobOutput `json:"outputs,omitempty" gorm:"foreignKey:JobId;constraint:OnDelete:CASCADE"`
}

func (Job) TableName() string {
	return "processing_jobs"
}
