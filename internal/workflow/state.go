// Package workflow holds the resumable pipeline state machine. A session's
// state records how far the extract -> transcribe -> summarize pipeline has
// progressed for one input artifact, so that independent re-entries of the
// driver resume instead of redoing expensive work.
package workflow

import (
	"path/filepath"
	"strings"
	"time"
)

// Stage is the ordinal pipeline position. Within one artifact's lifetime it
// only moves forward; only a fingerprint change or an explicit reset sends
// it back to StageNotStarted.
type Stage int

const (
	StageNotStarted Stage = iota
	StageAudioReady
	StageTranscriptReady
	StageAwaitingConfirmation
	StageSummaryReady
)

func (s Stage) String() string {
	switch s {
	case StageNotStarted:
		return "not_started"
	case StageAudioReady:
		return "audio_ready"
	case StageTranscriptReady:
		return "transcript_ready"
	case StageAwaitingConfirmation:
		return "awaiting_confirmation"
	case StageSummaryReady:
		return "summary_ready"
	default:
		return "unknown"
	}
}

// Kind classifies the input artifact and decides which stages are skipped:
// audio inputs need no extraction, text inputs need neither extraction nor
// transcription.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

// KindForName classifies an artifact by file extension. The second return
// is false for extensions the pipeline does not accept.
func KindForName(name string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v", ".flv":
		return KindVideo, true
	case ".wav", ".mp3", ".m4a", ".flac", ".ogg", ".aac":
		return KindAudio, true
	case ".txt", ".md":
		return KindText, true
	}
	return "", false
}

// Settings is the user configuration of a session. It is orthogonal to
// artifact identity and survives fingerprint-triggered resets.
type Settings struct {
	Language            string `json:"language"`
	Model               string `json:"model"`
	SystemPrompt        string `json:"system_prompt"`
	ReviewBeforeSummary bool   `json:"review_before_summary"`
}

// State is the persisted workflow record for one session. It is owned by
// the Controller and mutated only through its transition operations.
type State struct {
	SessionID   string `json:"session_id"`
	Stage       Stage  `json:"stage"`
	Fingerprint string `json:"fingerprint"`
	Kind        Kind   `json:"kind"`

	// SourcePath is the session-local copy of the uploaded artifact,
	// AudioPath the extracted (or directly uploaded) audio. Transcript and
	// Summary are set only once their producing stage completed.
	SourcePath string `json:"source_path,omitempty"`
	SourceName string `json:"source_name,omitempty"`
	AudioPath  string `json:"audio_path,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Summary    string `json:"summary,omitempty"`

	Settings Settings `json:"settings"`

	// AwaitingConfirmation is true while the review gate is open: the
	// transcript is ready, ReviewBeforeSummary is set and the user has not
	// yet asked for the summary.
	AwaitingConfirmation bool `json:"awaiting_confirmation"`

	UpdatedAt time.Time `json:"updated_at"`
}

// clearArtifacts drops every artifact of the current input and rewinds the
// stage. SessionID and Settings are untouched.
func (s *State) clearArtifacts() {
	s.Stage = StageNotStarted
	s.Fingerprint = ""
	s.Kind = ""
	s.SourcePath = ""
	s.SourceName = ""
	s.AudioPath = ""
	s.Transcript = ""
	s.Summary = ""
	s.AwaitingConfirmation = false
}

func (s *State) clone() *State {
	c := *s
	return &c
}
