package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/workflow"
)

type implWriter struct {
	outputDir string
	logger    logger.Logger
}

func New(outputDir string, log logger.Logger) Writer {
	return &implWriter{
		outputDir: outputDir,
		logger:    log,
	}
}

func (w *implWriter) Write(ctx context.Context, st *workflow.State) (*Result, error) {
	if st.Transcript == "" {
		return nil, fmt.Errorf("session %s has no transcript to export", st.SessionID)
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	base := strings.TrimSuffix(st.SourceName, filepath.Ext(st.SourceName))
	res := &Result{
		TranscriptTxt:  filepath.Join(w.outputDir, base+"_transcript.txt"),
		TranscriptDocx: filepath.Join(w.outputDir, base+"_transcript.docx"),
		SummaryMd:      filepath.Join(w.outputDir, base+"_summary.md"),
		SummaryDocx:    filepath.Join(w.outputDir, base+"_summary.docx"),
	}

	if err := os.WriteFile(res.TranscriptTxt, []byte(st.Transcript), 0644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	if err := transcriptToDocx("Transcript: "+base, st.Transcript, res.TranscriptDocx); err != nil {
		return nil, fmt.Errorf("write transcript docx: %w", err)
	}
	w.logger.Info(ctx, "Session %s: transcript exported to %s", st.SessionID, res.TranscriptTxt)

	if st.Summary == "" {
		res.SummaryMd = ""
		res.SummaryDocx = ""
		return res, nil
	}

	if err := os.WriteFile(res.SummaryMd, []byte(st.Summary), 0644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	if err := markdownToDocx("Summary: "+base, st.Summary, res.SummaryDocx); err != nil {
		return nil, fmt.Errorf("write summary docx: %w", err)
	}
	w.logger.Info(ctx, "Session %s: summary exported to %s", st.SessionID, res.SummaryMd)

	return res, nil
}
