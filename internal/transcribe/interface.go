package transcribe

import "context"

// Transcriber converts an audio file to text. Implementations fail with
// an error on provider failure and never return an empty transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language, speechModel string) (string, error)
}
