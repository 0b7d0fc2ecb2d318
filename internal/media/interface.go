package media

import "context"

// Extractor produces a transcription-ready audio file from a media file.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outputPath string) error
}
