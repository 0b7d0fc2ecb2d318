package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tranquochuy/summary-flow/internal/config"
	"github.com/tranquochuy/summary-flow/internal/export"
	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/media"
	"github.com/tranquochuy/summary-flow/internal/retry"
	"github.com/tranquochuy/summary-flow/internal/summarize"
	"github.com/tranquochuy/summary-flow/internal/transcribe"
	"github.com/tranquochuy/summary-flow/internal/watcher"
	"github.com/tranquochuy/summary-flow/internal/workflow"
	"github.com/tranquochuy/summary-flow/pkg/executor"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level)
	log.Info(ctx, "========================================")
	log.Info(ctx, "Media Summarization Pipeline")
	log.Info(ctx, "========================================")
	log.Info(ctx, "System: %s/%s", runtime.GOOS, runtime.GOARCH)
	log.Info(ctx, "CPU Cores: %d", runtime.NumCPU())
	log.Info(ctx, "Transcriber: %s, Summarizer: %s", cfg.Providers.Transcriber, cfg.Providers.Summarizer)
	log.Info(ctx, "Configuration loaded successfully")

	if err := ensureDirectories(cfg); err != nil {
		log.Error(ctx, "Failed to create directories: %v", err)
		os.Exit(1)
	}

	app, err := newApp(cfg, log)
	if err != nil {
		log.Error(ctx, "Failed to initialize pipeline: %v", err)
		os.Exit(1)
	}

	w, err := watcher.New(cfg.Paths.Input, watcher.Handlers{
		Artifact: app.handleArtifact,
		Approve:  app.handleApprove,
		Reset:    app.handleReset,
	}, log, cfg.Performance.MaxConcurrent)
	if err != nil {
		log.Error(ctx, "Failed to create watcher: %v", err)
		os.Exit(1)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := w.Start(ctx); err != nil && err != context.Canceled {
			errChan <- err
		}
	}()

	log.Info(ctx, "========================================")
	log.Info(ctx, "Pipeline is ready!")
	log.Info(ctx, "Monitoring: %s", cfg.Paths.Input)
	log.Info(ctx, "Output: %s", cfg.Paths.Output)
	log.Info(ctx, "Review before summary: %v", cfg.Defaults.ReviewBeforeSummary)
	log.Info(ctx, "Press Ctrl+C to stop")
	log.Info(ctx, "========================================")

	select {
	case <-sigChan:
		log.Info(ctx, "Shutdown signal received")
	case err := <-errChan:
		log.Error(ctx, "Watcher error: %v", err)
	}

	log.Info(ctx, "Shutting down gracefully...")
	cancel()

	log.Info(ctx, "Pipeline stopped")
}

// app wires the state machine to the filesystem: every artifact dropped in
// the input directory gets a durable session keyed by its base name, so a
// crash-and-restart (or a marker file) re-enters the same session.
type app struct {
	controller *workflow.Controller
	writer     export.Writer
	logger     logger.Logger
	reviewDir  string

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

func newApp(cfg *config.Config, log logger.Logger) (*app, error) {
	exec := executor.New()
	extractor := media.New(cfg.FFmpeg.BinaryPath, exec, log)

	openaiKey := os.Getenv(cfg.Providers.OpenAIKeyEnv)
	geminiKey := os.Getenv(cfg.Providers.GeminiKeyEnv)

	var transcriber workflow.Transcriber
	var transcriptionCred workflow.Credential
	switch cfg.Providers.Transcriber {
	case "whisper":
		transcriber = transcribe.NewWhisper(cfg.Whisper.BinaryPath, cfg.Whisper.ModelPath, cfg.Whisper.Threads, exec, log)
		// local binary, no credential to check
		transcriptionCred = workflow.Credential{Present: true}
	default:
		transcriber = transcribe.NewOpenAI(openaiKey, log)
		transcriptionCred = workflow.Credential{Name: cfg.Providers.OpenAIKeyEnv, Present: openaiKey != ""}
	}

	var summarizer workflow.Summarizer
	var summarizationCred workflow.Credential
	switch cfg.Providers.Summarizer {
	case "openai":
		summarizer = summarize.NewOpenAI(openaiKey, log)
		summarizationCred = workflow.Credential{Name: cfg.Providers.OpenAIKeyEnv, Present: openaiKey != ""}
	default:
		summarizer = summarize.NewGemini(geminiKey, log)
		summarizationCred = workflow.Credential{Name: cfg.Providers.GeminiKeyEnv, Present: geminiKey != ""}
	}

	store, err := workflow.NewFileStore(filepath.Join(cfg.Paths.Work, "state"))
	if err != nil {
		return nil, fmt.Errorf("create state store: %w", err)
	}

	controller := workflow.New(store, extractor, transcriber, summarizer, workflow.Options{
		WorkDir: cfg.Paths.Work,
		Defaults: workflow.Settings{
			Language:            cfg.Defaults.Language,
			Model:               cfg.Defaults.Model,
			SystemPrompt:        cfg.Defaults.SystemPrompt,
			ReviewBeforeSummary: cfg.Defaults.ReviewBeforeSummary,
		},
		SpeechModel: cfg.Defaults.SpeechModel,
		Credentials: workflow.Credentials{
			Transcription: transcriptionCred,
			Summarization: summarizationCred,
		},
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelaySeconds) * time.Second,
		},
	}, log)

	return &app{
		controller: controller,
		writer:     export.New(cfg.Paths.Output, log),
		logger:     log,
		reviewDir:  filepath.Join(cfg.Paths.Work, "review"),
		sessions:   make(map[string]*sync.Mutex),
	}, nil
}

// handleArtifact admits a dropped file into its session and drives the
// state machine until it is done, waiting for review, or failed.
func (a *app) handleArtifact(ctx context.Context, filePath string) error {
	kind, ok := workflow.KindForName(filePath)
	if !ok {
		return fmt.Errorf("unsupported artifact %s", filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", filePath, err)
	}

	in := &workflow.Input{
		Name:    filepath.Base(filePath),
		Content: content,
		Kind:    kind,
	}

	sid := a.sessionID(filePath)
	defer a.lockSession(sid)()
	return a.drive(ctx, sid, in)
}

// handleApprove confirms a reviewed transcript and resumes the session.
func (a *app) handleApprove(ctx context.Context, markerPath string) error {
	defer os.Remove(markerPath)

	sid := a.sessionID(markerPath)
	defer a.lockSession(sid)()
	if _, err := a.controller.Confirm(ctx, sid); err != nil {
		return fmt.Errorf("confirm session: %w", err)
	}
	return a.drive(ctx, sid, nil)
}

// handleReset starts the session over. Settings survive, artifacts do not.
func (a *app) handleReset(ctx context.Context, markerPath string) error {
	defer os.Remove(markerPath)

	sid := a.sessionID(markerPath)
	defer a.lockSession(sid)()
	if _, err := a.controller.Reset(ctx, sid); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	a.logger.Info(ctx, "Session %s: cleared, drop the artifact again to reprocess", sid)
	return nil
}

// drive re-enters the state machine until no further transition can run.
// Each Step performs at most one side-effecting call, so a failure here
// loses only the stage that failed.
func (a *app) drive(ctx context.Context, sessionID string, in *workflow.Input) error {
	started := time.Now()

	for {
		out, err := a.controller.Step(ctx, sessionID, in)
		in = nil
		if err != nil {
			var missing *workflow.MissingCredentialError
			if errors.As(err, &missing) {
				a.logger.Error(ctx, "Session %s: %s", sessionID, missing.Error())
				return err
			}
			return fmt.Errorf("advance session %s: %w", sessionID, err)
		}

		switch {
		case out.Waiting:
			return a.parkForReview(ctx, out.State)
		case out.Done:
			return a.finish(ctx, out.State, started)
		case out.Action == workflow.ActionNone:
			// nothing runnable and nothing to wait for
			return nil
		}
	}
}

// parkForReview publishes the transcript for inspection and tells the user
// how to resume.
func (a *app) parkForReview(ctx context.Context, st *workflow.State) error {
	if err := os.MkdirAll(a.reviewDir, 0755); err != nil {
		return fmt.Errorf("create review directory: %w", err)
	}

	base := baseName(st.SourceName)
	previewPath := filepath.Join(a.reviewDir, base+"_transcript.txt")
	if err := os.WriteFile(previewPath, []byte(st.Transcript), 0644); err != nil {
		return fmt.Errorf("write review transcript: %w", err)
	}

	a.logger.Info(ctx, "Session %s: transcript ready for review at %s", st.SessionID, previewPath)
	a.logger.Info(ctx, "Session %s: drop %s.approve in the input directory to summarize", st.SessionID, base)
	return nil
}

func (a *app) finish(ctx context.Context, st *workflow.State, started time.Time) error {
	res, err := a.writer.Write(ctx, st)
	if err != nil {
		return fmt.Errorf("export session %s: %w", st.SessionID, err)
	}

	a.logger.Info(ctx, "Session %s: complete in %s", st.SessionID, time.Since(started).Round(time.Second))
	a.logger.Info(ctx, "  Transcript: %d chars, %d words (%s)", len(st.Transcript), len(strings.Fields(st.Transcript)), res.TranscriptTxt)
	a.logger.Info(ctx, "  Summary: %d chars (%s)", len(st.Summary), res.SummaryMd)
	return nil
}

// sessionID maps an artifact (or marker) path to its durable session. The
// ID is derived from the base name without extension, so lecture.mp4,
// lecture.approve and lecture.reset all address the same session, across
// restarts too.
func (a *app) sessionID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(baseName(path))).String()
}

// lockSession serializes all work on one session and returns the unlock.
// The watcher's semaphore caps global concurrency only; two events for the
// same artifact must not interleave load-run-save cycles on its state, or a
// completed stage could run twice.
func (a *app) lockSession(id string) func() {
	a.mu.Lock()
	l, ok := a.sessions[id]
	if !ok {
		l = &sync.Mutex{}
		a.sessions[id] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ensureDirectories creates required directories if they don't exist
func ensureDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.Paths.Input,
		cfg.Paths.Work,
		cfg.Paths.Output,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
