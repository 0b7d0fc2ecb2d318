package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/pkg/executor"
)

type implExtractor struct {
	binary   string
	executor executor.Executor
	logger   logger.Logger
}

// New creates an ffmpeg-backed Extractor. binary is the ffmpeg executable
// to invoke, usually just "ffmpeg".
func New(binary string, exec executor.Executor, log logger.Logger) Extractor {
	return &implExtractor{
		binary:   binary,
		executor: exec,
		logger:   log,
	}
}

// Extract converts inputPath to 16kHz mono PCM WAV at outputPath, the
// format speech models expect.
func (e *implExtractor) Extract(ctx context.Context, inputPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	e.logger.Info(ctx, "Extracting audio: %s -> %s", inputPath, outputPath)

	args := []string{
		"-i", inputPath,
		"-vn", // No video
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le",
		"-threads", "0",
		"-y",
		outputPath,
	}

	if _, err := e.executor.Execute(ctx, e.binary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}

	// ffmpeg can exit zero without producing output for some malformed inputs
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("audio output missing after extraction: %w", err)
	}

	e.logger.Info(ctx, "Audio extracted successfully: %s", outputPath)
	return nil
}
