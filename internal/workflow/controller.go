package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/tranquochuy/summary-flow/internal/fingerprint"
	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/retry"
)

// Extractor produces a transcription-ready audio file from a media file.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outputPath string) error
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language, speechModel string) (string, error)
}

// Summarizer produces an LLM summary with an explicit system prompt.
type Summarizer interface {
	Summarize(ctx context.Context, text, model, systemPrompt string) (string, error)
}

// Credential records presence of a provider credential. The controller
// checks presence only; it never sees or stores the value.
type Credential struct {
	Name    string
	Present bool
}

// Credentials gates the transitions that need provider access.
type Credentials struct {
	Transcription Credential
	Summarization Credential
}

// Options configures a Controller.
type Options struct {
	// WorkDir is where session workspaces (input copy, extracted audio)
	// are materialized.
	WorkDir string
	// Defaults seeds the settings of newly created sessions.
	Defaults Settings
	// SpeechModel is passed to the transcriber.
	SpeechModel string
	Credentials Credentials
	Retry       retry.Config
}

// Input is a freshly observed artifact handed to one Step invocation.
type Input struct {
	Name    string
	Content []byte
	Kind    Kind
}

// Action names the single transition a Step invocation performed.
type Action string

const (
	ActionNone        Action = "none"
	ActionLoaded      Action = "loaded"
	ActionExtracted   Action = "extracted"
	ActionTranscribed Action = "transcribed"
	ActionSummarized  Action = "summarized"
)

// Outcome describes where a Step invocation left the session.
type Outcome struct {
	State  *State
	Action Action
	// Waiting reports an open review gate: the pipeline will not summarize
	// until Confirm is called.
	Waiting bool
	Done    bool
}

// Controller is the pipeline state machine. Each Step invocation computes
// the single next runnable transition and performs at most one external
// call, so repeated re-entries are idempotent with respect to completed
// stages.
type Controller struct {
	store       Store
	extractor   Extractor
	transcriber Transcriber
	summarizer  Summarizer
	opts        Options
	logger      logger.Logger
}

// New creates a Controller instance
func New(store Store, ext Extractor, tr Transcriber, sum Summarizer, opts Options, log logger.Logger) *Controller {
	return &Controller{
		store:       store,
		extractor:   ext,
		transcriber: tr,
		summarizer:  sum,
		opts:        opts,
		logger:      log,
	}
}

// Step is the re-entrant driver entry point. It loads the session state,
// admits a new input if one is present, runs at most one side-effecting
// transition and persists the result. Failures leave the stage unchanged
// and the same transition eligible on the next invocation.
func (c *Controller) Step(ctx context.Context, sessionID string, in *Input) (*Outcome, error) {
	st, err := c.store.Load(sessionID)
	if errors.Is(err, ErrNotFound) {
		st = &State{SessionID: sessionID, Settings: c.opts.Defaults}
	} else if err != nil {
		return nil, err
	}

	if in != nil {
		loaded, err := c.admit(ctx, st, in)
		if err != nil {
			return c.outcome(st, ActionNone), err
		}
		if loaded {
			return c.outcome(st, ActionLoaded), nil
		}
	}

	if st.Fingerprint == "" {
		// nothing uploaded yet
		return c.outcome(st, ActionNone), nil
	}

	return c.advance(ctx, st)
}

// Confirm closes the review gate, allowing the next Step to summarize.
func (c *Controller) Confirm(ctx context.Context, sessionID string) (*State, error) {
	st, err := c.store.Load(sessionID)
	if err != nil {
		return nil, err
	}

	if st.Stage == StageAwaitingConfirmation && st.AwaitingConfirmation {
		st.AwaitingConfirmation = false
		if err := c.store.Save(st); err != nil {
			return nil, err
		}
		c.logger.Info(ctx, "Session %s: summary confirmed by user", sessionID)
	}
	return st, nil
}

// Reset is the user-initiated start-over: all artifacts and the stage are
// cleared, the session settings are kept.
func (c *Controller) Reset(ctx context.Context, sessionID string) (*State, error) {
	st, err := c.store.Reset(sessionID, true)
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "Session %s: reset by user", sessionID)
	return st, nil
}

// Configure replaces the session settings. Settings are orthogonal to the
// loaded artifact, so the stage and artifacts are untouched.
func (c *Controller) Configure(ctx context.Context, sessionID string, settings Settings) (*State, error) {
	st, err := c.store.Load(sessionID)
	if errors.Is(err, ErrNotFound) {
		st = &State{SessionID: sessionID}
	} else if err != nil {
		return nil, err
	}

	st.Settings = settings
	if err := c.store.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}

// admit fingerprints the observed input. An unchanged fingerprint resumes
// the session as-is; a new one invalidates every prior artifact, records
// the input in the session workspace and fast-forwards the stages the
// input kind makes redundant.
func (c *Controller) admit(ctx context.Context, st *State, in *Input) (bool, error) {
	fp := fingerprint.Sum(in.Name, in.Content)
	if fp == st.Fingerprint {
		c.logger.Debug(ctx, "Session %s: same artifact %s, resuming at %s", st.SessionID, in.Name, st.Stage)
		return false, nil
	}

	if st.Fingerprint != "" {
		c.logger.Info(ctx, "Session %s: new artifact %s replaces previous input", st.SessionID, in.Name)
	}
	st.clearArtifacts()
	st.Fingerprint = fp
	st.Kind = in.Kind
	st.SourceName = in.Name

	if in.Kind == KindText && !utf8.Valid(in.Content) {
		// record the fingerprint anyway so the bad artifact is not
		// re-decoded on every re-entry
		if err := c.store.Save(st); err != nil {
			return false, err
		}
		return false, &DecodeError{Name: in.Name}
	}

	dir := c.sessionDir(st.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("create session workspace: %w", err)
	}
	src := filepath.Join(dir, filepath.Base(in.Name))
	if err := os.WriteFile(src, in.Content, 0644); err != nil {
		return false, fmt.Errorf("persist input artifact: %w", err)
	}
	st.SourcePath = src

	switch in.Kind {
	case KindText:
		st.Transcript = string(in.Content)
		st.Stage = StageTranscriptReady
		c.maybeOpenGate(ctx, st)
	case KindAudio:
		st.AudioPath = src
		st.Stage = StageAudioReady
	}

	if err := c.store.Save(st); err != nil {
		return false, err
	}
	c.logger.Info(ctx, "Session %s: loaded %s artifact %s (stage %s)", st.SessionID, in.Kind, in.Name, st.Stage)
	return true, nil
}

// advance picks the first transition whose preconditions hold and runs it.
func (c *Controller) advance(ctx context.Context, st *State) (*Outcome, error) {
	if st.Stage == StageSummaryReady {
		return c.outcome(st, ActionNone), nil
	}
	if st.Stage == StageAwaitingConfirmation && st.AwaitingConfirmation {
		return c.outcome(st, ActionNone), nil
	}

	// A text session still at NotStarted means admit recorded the
	// fingerprint of an undecodable artifact. An empty transcript alone is
	// not the signal: empty-but-valid text lands at TranscriptReady.
	if st.Kind == KindText && st.Stage == StageNotStarted {
		return c.outcome(st, ActionNone), &DecodeError{Name: st.SourceName}
	}

	// The stage enum alone is not trusted for the audio artifact: if the
	// recorded file vanished, extraction becomes runnable again.
	if st.Kind == KindVideo && st.Stage < StageTranscriptReady && !fileExists(st.AudioPath) {
		return c.runExtraction(ctx, st)
	}

	if st.Stage <= StageAudioReady {
		return c.runTranscription(ctx, st)
	}

	return c.runSummarization(ctx, st)
}

func (c *Controller) runExtraction(ctx context.Context, st *State) (*Outcome, error) {
	if !fileExists(st.SourcePath) {
		return c.outcome(st, ActionNone), &StageError{Op: "extract", Err: errors.New("source artifact missing from session workspace")}
	}

	audioPath := filepath.Join(c.sessionDir(st.SessionID), "audio.wav")
	if err := c.extractor.Extract(ctx, st.SourcePath, audioPath); err != nil {
		return c.outcome(st, ActionNone), &StageError{Op: "extract", Err: err}
	}

	st.AudioPath = audioPath
	if st.Stage < StageAudioReady {
		st.Stage = StageAudioReady
	}
	if err := c.store.Save(st); err != nil {
		return nil, err
	}
	return c.outcome(st, ActionExtracted), nil
}

func (c *Controller) runTranscription(ctx context.Context, st *State) (*Outcome, error) {
	if !c.opts.Credentials.Transcription.Present {
		return c.outcome(st, ActionNone), &MissingCredentialError{
			Credential: c.opts.Credentials.Transcription.Name,
			Stage:      StageTranscriptReady,
		}
	}
	if !fileExists(st.AudioPath) {
		return c.outcome(st, ActionNone), &StageError{Op: "transcribe", Err: errors.New("audio artifact missing from session workspace")}
	}

	text, err := c.transcriber.Transcribe(ctx, st.AudioPath, st.Settings.Language, c.opts.SpeechModel)
	if err != nil {
		return c.outcome(st, ActionNone), &StageError{Op: "transcribe", Err: err}
	}

	st.Transcript = text
	st.Stage = StageTranscriptReady
	c.maybeOpenGate(ctx, st)
	if err := c.store.Save(st); err != nil {
		return nil, err
	}
	return c.outcome(st, ActionTranscribed), nil
}

func (c *Controller) runSummarization(ctx context.Context, st *State) (*Outcome, error) {
	// Settings may have enabled review after the transcript was produced;
	// opening the gate is effect-free, so it can happen here.
	if st.Stage == StageTranscriptReady && c.maybeOpenGate(ctx, st) {
		if err := c.store.Save(st); err != nil {
			return nil, err
		}
		return c.outcome(st, ActionNone), nil
	}

	if !c.opts.Credentials.Summarization.Present {
		return c.outcome(st, ActionNone), &MissingCredentialError{
			Credential: c.opts.Credentials.Summarization.Name,
			Stage:      StageSummaryReady,
		}
	}

	summary, err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (string, error) {
		return c.summarizer.Summarize(ctx, st.Transcript, st.Settings.Model, st.Settings.SystemPrompt)
	})
	if err != nil {
		return c.outcome(st, ActionNone), &StageError{Op: "summarize", Err: err}
	}

	st.Summary = summary
	st.Stage = StageSummaryReady
	st.AwaitingConfirmation = false
	if err := c.store.Save(st); err != nil {
		return nil, err
	}
	return c.outcome(st, ActionSummarized), nil
}

// maybeOpenGate switches a fresh transcript into the review gate when the
// session asks for it. Reports whether the gate was opened.
func (c *Controller) maybeOpenGate(ctx context.Context, st *State) bool {
	if !st.Settings.ReviewBeforeSummary || st.Summary != "" {
		return false
	}
	st.Stage = StageAwaitingConfirmation
	st.AwaitingConfirmation = true
	c.logger.Info(ctx, "Session %s: transcript ready, waiting for user confirmation", st.SessionID)
	return true
}

func (c *Controller) outcome(st *State, action Action) *Outcome {
	return &Outcome{
		State:   st.clone(),
		Action:  action,
		Waiting: st.Stage == StageAwaitingConfirmation && st.AwaitingConfirmation,
		Done:    st.Stage == StageSummaryReady,
	}
}

func (c *Controller) sessionDir(sessionID string) string {
	return filepath.Join(c.opts.WorkDir, "sessions", sessionID)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
