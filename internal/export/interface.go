package export

import (
	"context"

	"github.com/tranquochuy/summary-flow/internal/workflow"
)

// Result names the files produced for a finished session.
type Result struct {
	TranscriptTxt  string
	TranscriptDocx string
	SummaryMd      string
	SummaryDocx    string
}

// Writer persists the artifacts of a completed session to the output
// directory in both plain-text and docx form.
type Writer interface {
	Write(ctx context.Context, st *workflow.State) (*Result, error)
}
