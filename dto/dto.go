package dto

import (
	"github.com/google/uuid"
	"time"
	"worker-pipeline/constant"
)

type JobFinishedEvent struct {
	JobId      uuid.UUID          `json:"jobId"`
	FileId     uuid.UUID          `json:"fileId"`
	OwnerId    uuid.UUID          `json:"ownerId"`
	JobType    constant.JobType   `json:"jobType"`
	Status     constant.JobStatus `json:"status"`
	Error      string             `json:"error,omitempty"`
	Outputs    []JobOutput        `json:"outputs"`
	FinishedAt time.Time          `json:"finishedAt"`
}

type JobOutput struct {
	OutputType  constant.OutputType `json:"outputType"`
	StoragePath string              `json:"storagePath"`
}

func (e JobFinishedEvent) RoutingKey() string {
	if e.Status == constant.JobStatusSucceeded {
		return "job.succeeded"
	}
	return "job.failed"
}
