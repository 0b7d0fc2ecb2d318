package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tranquochuy/summary-flow/internal/logger"
)

type implOpenAI struct {
	cli    *openai.Client
	logger logger.Logger
}

// NewOpenAI creates a Transcriber backed by the OpenAI audio API.
func NewOpenAI(apiKey string, log logger.Logger) Transcriber {
	return &implOpenAI{
		cli:    openai.NewClient(apiKey),
		logger: log,
	}
}

func (t *implOpenAI) Transcribe(ctx context.Context, audioPath, language, speechModel string) (string, error) {
	t.logger.Info(ctx, "Transcribing %s (model=%s, language=%s)", audioPath, speechModel, language)

	resp, err := t.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    speechModel,
		FilePath: audioPath,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("empty transcription result")
	}

	t.logger.Info(ctx, "Transcription completed, %d characters", len(text))
	return text, nil
}
