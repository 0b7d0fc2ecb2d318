package watcher

import "context"

// Watcher defines the interface for file system monitoring
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// EventHandler is a function that handles file events
type EventHandler func(ctx context.Context, filePath string) error

// Handlers routes the three event classes seen in the input directory:
// pipeline artifacts (video, audio, text), .approve markers confirming a
// reviewed transcript, and .reset markers starting a session over.
type Handlers struct {
	Artifact EventHandler
	Approve  EventHandler
	Reset    EventHandler
}
