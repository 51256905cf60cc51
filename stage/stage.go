// Package stage maps job types to the processing functions that run them.
//
// Registry has one field per job type, so adding a type means adding a field and a
// Lookup case; there is no string-keyed table to fall out of sync with the enum.
package stage

import (
	"context"
	"errors"
	"fmt"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

var ErrUnknownJobType = errors.New("unknown job type")

// Output is one artifact produced by a stage. When Payload is nil the executor stores the
// JSON encoding of Meta instead.
type Output struct {
	Type        constant.OutputType
	PathHint    string
	Meta        entities.Meta
	Payload     []byte
	ContentType string
}

type Func func(ctx context.Context, data []byte, file *entities.File) ([]Output, error)

type Registry struct {
	Extract              Func
	OCR                  Func
	Classify             Func
	Embed                Func
	Summarize            Func
	StudentRecordAnalyze Func
}

func NewRegistry() *Registry {
	return &Registry{
		Extract:              extract,
		OCR:                  ocr,
		Classify:             classify,
		Embed:                noOutputs,
		Summarize:            noOutputs,
		StudentRecordAnalyze: noOutputs,
	}
}

func (r *Registry) Lookup(jobType constant.JobType) (Func, error) {
	var fn Func
	switch jobType {
	case constant.JobTypeExtract:
		fn = r.Extract
	case constant.JobTypeOCR:
		fn = r.OCR
	case constant.JobTypeClassify:
		fn = r.Classify
	case constant.JobTypeEmbed:
		fn = r.Embed
	case constant.JobTypeSummarize:
		fn = r.Summarize
	case constant.JobTypeStudentRecordAnalyze:
		fn = r.StudentRecordAnalyze
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, string(jobType))
	}

	return fn, nil
}
