package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/retry"
)

type implOpenAI struct {
	cli    *openai.Client
	logger logger.Logger
}

// NewOpenAI creates a Summarizer backed by the OpenAI chat API.
func NewOpenAI(apiKey string, log logger.Logger) Summarizer {
	return &implOpenAI{
		cli:    openai.NewClient(apiKey),
		logger: log,
	}
}

func (s *implOpenAI) Summarize(ctx context.Context, text, model, systemPrompt string) (string, error) {
	s.logger.Info(ctx, "Summarizing %d characters with %s", len(text), model)

	resp, err := s.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", retry.RateLimited(err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty response from openai")
	}

	return summary, nil
}
