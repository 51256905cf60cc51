package constant

import "strings"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

type JobType string

const (
	JobTypeExtract              JobType = "EXTRACT"
	JobTypeOCR                  JobType = "OCR"
	JobTypeClassify             JobType = "CLASSIFY"
	JobTypeEmbed                JobType = "EMBED"
	JobTypeSummarize            JobType = "SUMMARIZE"
	JobTypeStudentRecordAnalyze JobType = "STUDENT_RECORD_ANALYZE"
)

var JobTypes = []JobType{
	JobTypeExtract,
	JobTypeOCR,
	JobTypeClassify,
	JobTypeEmbed,
	JobTypeSummarize,
	JobTypeStudentRecordAnalyze,
}

// ParseJobType normalizes user input the way the submission API does (upper case).
func ParseJobType(s string) (JobType, bool) {
	t := JobType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range JobTypes {
		if t == known {
			return t, true
		}
	}
	return t, false
}

type OutputType string

const (
	OutputTypeText      OutputType = "TEXT"
	OutputTypeJSON      OutputType = "JSON"
	OutputTypeThumb     OutputType = "THUMB"
	OutputTypeEmbedding OutputType = "EMBEDDING"
)

func (o OutputType) Valid() bool {
	switch o {
	case OutputTypeText, OutputTypeJSON, OutputTypeThumb, OutputTypeEmbedding:
		return true
	}
	return false
}

func (o OutputType) ContentType() string {
	switch o {
	case OutputTypeText:
		return "text/plain"
	case OutputTypeThumb:
		return "image/png"
	case OutputTypeJSON, OutputTypeEmbedding:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
