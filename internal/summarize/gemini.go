package summarize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/retry"
)

type implGemini struct {
	apiKey string
	logger logger.Logger
}

// NewGemini creates a Summarizer backed by the Gemini API.
func NewGemini(apiKey string, log logger.Logger) Summarizer {
	return &implGemini{
		apiKey: apiKey,
		logger: log,
	}
}

func (s *implGemini) Summarize(ctx context.Context, text, model, systemPrompt string) (string, error) {
	s.logger.Info(ctx, "Summarizing %d characters with %s", len(text), model)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	result, err := client.Models.GenerateContent(ctx, model, genai.Text(text), cfg)
	if err != nil {
		if isGeminiRateLimit(err) {
			return "", retry.RateLimited(err)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	var summary string
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			summary += part.Text
		}
	}
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("empty response from gemini")
	}

	return strings.TrimSpace(summary), nil
}

// isGeminiRateLimit matches the throttling shapes the Gemini API returns.
func isGeminiRateLimit(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
