package summarize

import "context"

// Summarizer produces an LLM summary of text. The system prompt is an
// explicit parameter; every implementation must accept it. A throttled
// provider is reported as a rate-limit error distinguishable with
// retry.IsRateLimited; any other failure is permanent.
type Summarizer interface {
	Summarize(ctx context.Context, text, model, systemPrompt string) (string, error)
}
