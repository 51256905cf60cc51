package stage

import (
	"context"
	"fmt"
	"time"
	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

// The built-in stages only describe their inputs. Real extraction, OCR and
// classification backends plug in by replacing the Registry fields.

func extract(_ context.Context, data []byte, file *entities.File) ([]Output, error) {
	text := fmt.Sprintf("Extracted text from %s\n\nFile type: %s\nFile size: %d bytes\n",
		file.OriginalFilename, file.MimeType, len(data))

	return []Output{
		{
			Type:        constant.OutputTypeText,
			PathHint:    fmt.Sprintf("extracted_text_%s.txt", file.ID),
			Payload:     []byte(text),
			ContentType: "text/plain; charset=utf-8",
			Meta: entities.Meta{
				"originalFilename": file.OriginalFilename,
				"mimeType":         file.MimeType,
				"extractedAt":      now(),
			},
		},
	}, nil
}

func ocr(_ context.Context, _ []byte, file *entities.File) ([]Output, error) {
	return []Output{
		{
			Type:     constant.OutputTypeText,
			PathHint: fmt.Sprintf("ocr_result_%s.txt", file.ID),
			Meta: entities.Meta{
				"originalFilename": file.OriginalFilename,
				"mimeType":         file.MimeType,
				"ocrProcessedAt":   now(),
				"confidence":       0.95,
			},
		},
	}, nil
}

func classify(_ context.Context, _ []byte, file *entities.File) ([]Output, error) {
	return []Output{
		{
			Type:     constant.OutputTypeJSON,
			PathHint: fmt.Sprintf("classification_%s.json", file.ID),
			Meta: entities.Meta{
				"subject":          "MATH",
				"unit":             "Algebra",
				"difficulty":       "MEDIUM",
				"tags":             []string{"unclassified"},
				"confidence":       0.8,
				"originalFilename": file.OriginalFilename,
				"classifiedAt":     now(),
			},
		},
	}, nil
}

func noOutputs(context.Context, []byte, *entities.File) ([]Output, error) {
	return nil, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
