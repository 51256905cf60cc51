package entities

import (
	"github.com/google/uuid"
	"time"
	"worker-pipeline/constant"
)

// JobOutput rows are append-only.
type JobOutput struct {
	ID          uuid.UUID           `json:"id" gorm:"type:uuid;primary_key"`
	JobId       uuid.UUID           `json:"job_id" gorm:"type:uuid;not null;index:idx_job_outputs_job_id"`
	OutputType  constant.OutputType `json:"output_type" gorm:"type:varchar(20);not null"`
	StoragePath string              `json:"storage_path" gorm:"type:varchar(1024);not null;uniqueIndex:unique_job_outputs_storage_path"`
	Meta        Meta                `json:"meta" gorm:"type:jsonb;not null"`
	CreatedAt   time.Time           `json:"created_at" gorm:"type:timestamptz;not null"`
}

func (JobOutput) TableName() string {
	return "job_outputs"
}
