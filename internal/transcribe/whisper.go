package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/pkg/executor"
)

type implWhisper struct {
	binary   string
	model    string
	threads  int
	executor executor.Executor
	logger   logger.Logger
}

// NewWhisper creates a Transcriber that runs a local whisper.cpp binary.
// It needs no credentials and ignores the speechModel argument, which
// selects remote models only.
func NewWhisper(binary, model string, threads int, exec executor.Executor, log logger.Logger) Transcriber {
	return &implWhisper{
		binary:   binary,
		model:    model,
		threads:  threads,
		executor: exec,
		logger:   log,
	}
}

func (t *implWhisper) Transcribe(ctx context.Context, audioPath, language, _ string) (string, error) {
	outputPrefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))

	t.logger.Info(ctx, "Transcribing %s locally with %d threads", audioPath, t.threads)

	// -l forces the language to prevent hallucinated language switches,
	// -otxt writes plain text next to the audio file
	args := []string{
		"-m", t.model,
		"-f", audioPath,
		"-otxt",
		"-l", language,
		"-t", strconv.Itoa(t.threads),
		"--output-file", outputPrefix,
	}

	if _, err := t.executor.Execute(ctx, t.binary, args...); err != nil {
		return "", fmt.Errorf("whisper transcribe: %w", err)
	}

	txtPath := outputPrefix + ".txt"
	data, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	defer os.Remove(txtPath)

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("empty transcription result")
	}

	t.logger.Info(ctx, "Transcription completed, %d characters", len(text))
	return text, nil
}
