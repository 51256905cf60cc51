package stage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

func TestRegistry_LookupKnownTypes(t *testing.T) {
	r := NewRegistry()
	for _, jobType := range constant.JobTypes {
		t.Run(string(jobType), func(t *testing.T) {
			fn, err := r.Lookup(jobType)
			require.NoError(t, err)
			assert.NotNil(t, fn)
		})
	}
}

func TestRegistry_LookupUnknownType(t *testing.T) {
	_, err := NewRegistry().Lookup("BOGUS")
	require.ErrorIs(t, err, ErrUnknownJobType)
	assert.Contains(t, err.Error(), "BOGUS")
}

func TestRegistry_LookupUnregisteredStage(t *testing.T) {
	r := NewRegistry()
	r.Embed = nil

	_, err := r.Lookup(constant.JobTypeEmbed)
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestRegistry_LookupReturnsOverride(t *testing.T) {
	r := NewRegistry()
	called := false
	r.OCR = func(context.Context, []byte, *entities.File) ([]Output, error) {
		called = true
		return nil, nil
	}

	fn, err := r.Lookup(constant.JobTypeOCR)
	require.NoError(t, err)
	_, _ = fn(context.Background(), nil, &entities.File{})
	assert.True(t, called)
}

func TestBuiltinStages(t *testing.T) {
	file := &entities.File{
		ID:               uuid.New(),
		OriginalFilename: "midterm.pdf",
		MimeType:         "application/pdf",
	}

	tests := []struct {
		jobType  constant.JobType
		outputs  int
		wantType constant.OutputType
	}{
		{constant.JobTypeExtract, 1, constant.OutputTypeText},
		{constant.JobTypeOCR, 1, constant.OutputTypeText},
		{constant.JobTypeClassify, 1, constant.OutputTypeJSON},
		{constant.JobTypeEmbed, 0, ""},
		{constant.JobTypeSummarize, 0, ""},
		{constant.JobTypeStudentRecordAnalyze, 0, ""},
	}

	r := NewRegistry()
	for _, tt := range tests {
		t.Run(string(tt.jobType), func(t *testing.T) {
			fn, err := r.Lookup(tt.jobType)
			require.NoError(t, err)

			outputs, err := fn(context.Background(), []byte("%PDF-1.7"), file)
			require.NoError(t, err)
			require.Len(t, outputs, tt.outputs)
			for _, out := range outputs {
				assert.Equal(t, tt.wantType, out.Type)
				assert.Contains(t, out.PathHint, file.ID.String())
				assert.Equal(t, "midterm.pdf", out.Meta["originalFilename"])
			}
		})
	}
}
