package workflow

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/retry"
)

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, inputPath, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("RIFF"), 0644)
}

type fakeTranscriber struct {
	calls int
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, language, speechModel string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeSummarizer struct {
	calls          int
	text           string
	err            error
	rateLimitFirst int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text, model, systemPrompt string) (string, error) {
	f.calls++
	if f.calls <= f.rateLimitFirst {
		return "", retry.RateLimited(errors.New("429 too many requests"))
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type testRig struct {
	ctrl *Controller
	ext  *fakeExtractor
	tr   *fakeTranscriber
	sum  *fakeSummarizer
}

func newRig(t *testing.T, mutate func(*Options)) *testRig {
	t.Helper()

	ext := &fakeExtractor{}
	tr := &fakeTranscriber{text: "a transcript"}
	sum := &fakeSummarizer{text: "a summary"}

	opts := Options{
		WorkDir: t.TempDir(),
		Defaults: Settings{
			Language:     "en",
			Model:        "gemini-2.5-flash",
			SystemPrompt: "be concise",
		},
		SpeechModel: "whisper-1",
		Credentials: Credentials{
			Transcription: Credential{Name: "OPENAI_API_KEY", Present: true},
			Summarization: Credential{Name: "GEMINI_API_KEY", Present: true},
		},
		Retry: retry.Config{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &testRig{
		ctrl: New(NewMemoryStore(), ext, tr, sum, opts, logger.New("error")),
		ext:  ext,
		tr:   tr,
		sum:  sum,
	}
}

func (r *testRig) step(t *testing.T, sid string, in *Input) *Outcome {
	t.Helper()
	out, err := r.ctrl.Step(context.Background(), sid, in)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	return out
}

func videoInput(content string) *Input {
	return &Input{Name: "lecture.mp4", Content: []byte(content), Kind: KindVideo}
}

func TestTextInputSkipsToTranscript(t *testing.T) {
	r := newRig(t, nil)

	out := r.step(t, "s1", &Input{Name: "notes.txt", Content: []byte("hello world"), Kind: KindText})
	if out.Action != ActionLoaded {
		t.Errorf("Action = %v, want %v", out.Action, ActionLoaded)
	}
	if out.State.Stage != StageTranscriptReady {
		t.Errorf("Stage = %v, want %v", out.State.Stage, StageTranscriptReady)
	}
	if out.State.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", out.State.Transcript, "hello world")
	}
	if out.State.Fingerprint == "" {
		t.Error("Fingerprint not recorded")
	}
	if r.ext.calls != 0 || r.tr.calls != 0 {
		t.Errorf("extraction/transcription invoked for text input: %d/%d calls", r.ext.calls, r.tr.calls)
	}

	// next re-entry summarizes directly
	out = r.step(t, "s1", nil)
	if out.Action != ActionSummarized || !out.Done {
		t.Errorf("Action = %v, Done = %v, want summarized and done", out.Action, out.Done)
	}
	if r.ext.calls != 0 || r.tr.calls != 0 {
		t.Error("text input must never touch extraction or transcription")
	}
}

func TestVideoPipelineAdvancesOneStagePerStep(t *testing.T) {
	r := newRig(t, nil)

	out := r.step(t, "s1", videoInput("video bytes"))
	if out.Action != ActionLoaded || out.State.Stage != StageNotStarted {
		t.Fatalf("after load: action %v stage %v", out.Action, out.State.Stage)
	}

	out = r.step(t, "s1", nil)
	if out.Action != ActionExtracted || out.State.Stage != StageAudioReady {
		t.Fatalf("after step 2: action %v stage %v", out.Action, out.State.Stage)
	}
	if r.ext.calls != 1 || r.tr.calls != 0 || r.sum.calls != 0 {
		t.Fatalf("calls after extraction = %d/%d/%d, want 1/0/0", r.ext.calls, r.tr.calls, r.sum.calls)
	}

	out = r.step(t, "s1", nil)
	if out.Action != ActionTranscribed || out.State.Stage != StageTranscriptReady {
		t.Fatalf("after step 3: action %v stage %v", out.Action, out.State.Stage)
	}
	if out.State.Transcript != "a transcript" {
		t.Errorf("Transcript = %q", out.State.Transcript)
	}

	out = r.step(t, "s1", nil)
	if out.Action != ActionSummarized || !out.Done {
		t.Fatalf("after step 4: action %v done %v", out.Action, out.Done)
	}
	if out.State.Summary != "a summary" {
		t.Errorf("Summary = %q", out.State.Summary)
	}
	if r.ext.calls != 1 || r.tr.calls != 1 || r.sum.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", r.ext.calls, r.tr.calls, r.sum.calls)
	}
}

func TestStagesMonotonicAcrossSteps(t *testing.T) {
	r := newRig(t, nil)

	prev := StageNotStarted
	r.step(t, "s1", videoInput("video bytes"))
	for i := 0; i < 6; i++ {
		out := r.step(t, "s1", nil)
		if out.State.Stage < prev {
			t.Fatalf("stage went backwards: %v after %v", out.State.Stage, prev)
		}
		prev = out.State.Stage
	}
	if prev != StageSummaryReady {
		t.Errorf("final stage = %v, want %v", prev, StageSummaryReady)
	}
}

func TestExtractionFailureKeepsStageAndRetries(t *testing.T) {
	r := newRig(t, nil)
	r.ext.err = errors.New("ffmpeg not found")

	r.step(t, "s1", videoInput("video bytes"))

	_, err := r.ctrl.Step(context.Background(), "s1", nil)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Op != "extract" {
		t.Fatalf("Step() error = %v, want extract StageError", err)
	}

	// stage must not have advanced past the failed transition
	loaded, loadErr := r.ctrl.Confirm(context.Background(), "s1")
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if loaded.Stage != StageNotStarted {
		t.Errorf("Stage after failed extraction = %v, want %v", loaded.Stage, StageNotStarted)
	}

	// the fault clears, the same transition runs on the next re-entry
	r.ext.err = nil
	out := r.step(t, "s1", nil)
	if out.Action != ActionExtracted || out.State.Stage != StageAudioReady {
		t.Errorf("after recovery: action %v stage %v", out.Action, out.State.Stage)
	}
}

func TestReviewGateBlocksSummarization(t *testing.T) {
	r := newRig(t, func(o *Options) {
		o.Defaults.ReviewBeforeSummary = true
	})

	out := r.step(t, "s1", &Input{Name: "notes.txt", Content: []byte("hello"), Kind: KindText})
	if !out.Waiting {
		t.Fatal("gate not open after transcript became ready")
	}
	if !out.State.AwaitingConfirmation || out.State.Stage != StageAwaitingConfirmation {
		t.Errorf("state = stage %v awaiting %v", out.State.Stage, out.State.AwaitingConfirmation)
	}

	// re-entries without confirmation do nothing
	for i := 0; i < 3; i++ {
		out = r.step(t, "s1", nil)
		if !out.Waiting || out.Action != ActionNone {
			t.Fatalf("re-entry %d: action %v waiting %v", i, out.Action, out.Waiting)
		}
	}
	if r.sum.calls != 0 {
		t.Fatalf("summarizer called %d times before confirmation", r.sum.calls)
	}

	if _, err := r.ctrl.Confirm(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	out = r.step(t, "s1", nil)
	if out.Action != ActionSummarized || !out.Done {
		t.Errorf("after confirm: action %v done %v", out.Action, out.Done)
	}
	if out.State.AwaitingConfirmation {
		t.Error("AwaitingConfirmation still set after summary")
	}
	if r.sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", r.sum.calls)
	}
}

func TestRateLimitedSummarizationRetriesAutomatically(t *testing.T) {
	r := newRig(t, nil)
	r.sum.rateLimitFirst = 2

	r.step(t, "s1", &Input{Name: "notes.txt", Content: []byte("hello"), Kind: KindText})
	out := r.step(t, "s1", nil)

	if !out.Done || out.State.Summary != "a summary" {
		t.Errorf("done %v summary %q, want successful summary", out.Done, out.State.Summary)
	}
	if r.sum.calls != 3 {
		t.Errorf("summarizer calls = %d, want exactly 3", r.sum.calls)
	}
}

func TestRateLimitExhaustionIsDistinguished(t *testing.T) {
	r := newRig(t, nil)
	r.sum.rateLimitFirst = 100

	r.step(t, "s1", &Input{Name: "notes.txt", Content: []byte("hello"), Kind: KindText})
	_, err := r.ctrl.Step(context.Background(), "s1", nil)

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Step() error = %v, want ExhaustedError in chain", err)
	}
	if r.sum.calls != 3 {
		t.Errorf("summarizer calls = %d, want MaxAttempts+1 = 3", r.sum.calls)
	}

	st, loadErr := r.ctrl.Confirm(context.Background(), "s1")
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if st.Stage != StageTranscriptReady {
		t.Errorf("Stage = %v, want unchanged %v", st.Stage, StageTranscriptReady)
	}
}

func TestSameArtifactResumesWithoutReset(t *testing.T) {
	r := newRig(t, nil)

	in := videoInput("identical bytes")
	r.step(t, "s1", in)
	for i := 0; i < 3; i++ {
		r.step(t, "s1", nil)
	}

	// the same file dropped again: nothing is redone
	out := r.step(t, "s1", videoInput("identical bytes"))
	if out.State.Stage != StageSummaryReady || !out.Done {
		t.Errorf("stage = %v, want retained %v", out.State.Stage, StageSummaryReady)
	}
	if out.State.Summary != "a summary" || out.State.Transcript != "a transcript" {
		t.Error("prior artifacts were discarded on identical re-upload")
	}
	if r.ext.calls != 1 || r.tr.calls != 1 || r.sum.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want no re-runs", r.ext.calls, r.tr.calls, r.sum.calls)
	}
}

func TestNewArtifactResetsButKeepsSettings(t *testing.T) {
	r := newRig(t, nil)

	r.step(t, "s1", videoInput("first video"))
	for i := 0; i < 3; i++ {
		r.step(t, "s1", nil)
	}

	out := r.step(t, "s1", videoInput("second video"))
	if out.Action != ActionLoaded {
		t.Fatalf("Action = %v, want %v", out.Action, ActionLoaded)
	}
	st := out.State
	if st.Stage != StageNotStarted {
		t.Errorf("Stage = %v, want reset to %v", st.Stage, StageNotStarted)
	}
	if st.Transcript != "" || st.Summary != "" || st.AudioPath != "" {
		t.Errorf("artifacts survived reset: %+v", st)
	}
	if st.Settings.Language != "en" || st.Settings.Model != "gemini-2.5-flash" {
		t.Errorf("settings lost on reset: %+v", st.Settings)
	}
}

func TestIdempotentWhenDone(t *testing.T) {
	r := newRig(t, nil)

	r.step(t, "s1", &Input{Name: "notes.txt", Content: []byte("hello"), Kind: KindText})
	r.step(t, "s1", nil)

	first := r.step(t, "s1", nil)
	second := r.step(t, "s1", nil)
	if first.Action != ActionNone || second.Action != ActionNone {
		t.Errorf("actions = %v/%v, want none/none", first.Action, second.Action)
	}
	if *first.State != *second.State {
		t.Errorf("state changed between idle steps:\n%+v\n%+v", first.State, second.State)
	}
	if r.sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", r.sum.calls)
	}
}

func TestMissingTranscriptionCredentialBlocks(t *testing.T) {
	r := newRig(t, func(o *Options) {
		o.Credentials.Transcription = Credential{Name: "OPENAI_API_KEY", Present: false}
	})

	r.step(t, "s1", &Input{Name: "voice.wav", Content: []byte("RIFF"), Kind: KindAudio})
	_, err := r.ctrl.Step(context.Background(), "s1", nil)

	var missing *MissingCredentialError
	if !errors.As(err, &missing) {
		t.Fatalf("Step() error = %v, want MissingCredentialError", err)
	}
	if missing.Credential != "OPENAI_API_KEY" {
		t.Errorf("Credential = %q, want the provider env name", missing.Credential)
	}
	if err.Error() != "cannot proceed: missing OPENAI_API_KEY" {
		t.Errorf("message = %q", err.Error())
	}
	if r.tr.calls != 0 {
		t.Errorf("transcriber called %d times without credential", r.tr.calls)
	}

	st, loadErr := r.ctrl.Confirm(context.Background(), "s1")
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if st.Stage != StageAudioReady {
		t.Errorf("Stage = %v, want unchanged %v", st.Stage, StageAudioReady)
	}
}

func TestMissingAudioArtifactTriggersReExtraction(t *testing.T) {
	r := newRig(t, nil)

	r.step(t, "s1", videoInput("video bytes"))
	out := r.step(t, "s1", nil)
	if out.State.Stage != StageAudioReady {
		t.Fatalf("Stage = %v, want %v", out.State.Stage, StageAudioReady)
	}

	// the cached audio vanishes behind the state machine's back
	if err := os.Remove(out.State.AudioPath); err != nil {
		t.Fatal(err)
	}

	out = r.step(t, "s1", nil)
	if out.Action != ActionExtracted {
		t.Errorf("Action = %v, want re-extraction (the file on disk is authoritative)", out.Action)
	}
	if r.ext.calls != 2 || r.tr.calls != 0 {
		t.Errorf("calls = %d/%d, want 2/0", r.ext.calls, r.tr.calls)
	}
}

func TestUndecodableTextRecordsFingerprint(t *testing.T) {
	r := newRig(t, nil)

	bad := &Input{Name: "notes.txt", Content: []byte{0xff, 0xfe, 0x01}, Kind: KindText}
	_, err := r.ctrl.Step(context.Background(), "s1", bad)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Step() error = %v, want DecodeError", err)
	}

	st, loadErr := r.ctrl.Confirm(context.Background(), "s1")
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if st.Fingerprint == "" {
		t.Error("fingerprint not recorded for bad artifact")
	}
	if st.Stage != StageNotStarted {
		t.Errorf("Stage = %v, want %v", st.Stage, StageNotStarted)
	}

	// same bad artifact again: reported, not reprocessed
	_, err = r.ctrl.Step(context.Background(), "s1", bad)
	if !errors.As(err, &decodeErr) {
		t.Fatalf("second Step() error = %v, want DecodeError", err)
	}
	if r.tr.calls != 0 || r.sum.calls != 0 {
		t.Error("bad artifact reached the providers")
	}
}

func TestEmptyTextArtifactIsNotADecodeError(t *testing.T) {
	r := newRig(t, nil)

	out := r.step(t, "s1", &Input{Name: "empty.txt", Content: []byte{}, Kind: KindText})
	if out.State.Stage != StageTranscriptReady {
		t.Fatalf("Stage = %v, want %v", out.State.Stage, StageTranscriptReady)
	}

	out = r.step(t, "s1", nil)
	if out.Action != ActionSummarized || !out.Done {
		t.Errorf("after re-entry: action %v done %v, want summarization to run", out.Action, out.Done)
	}
	if r.sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", r.sum.calls)
	}
}

func TestUserResetKeepsSettings(t *testing.T) {
	r := newRig(t, func(o *Options) {
		o.Defaults.Language = "ru"
	})

	r.step(t, "s1", videoInput("video bytes"))
	r.step(t, "s1", nil)

	st, err := r.ctrl.Reset(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if st.Stage != StageNotStarted || st.Fingerprint != "" || st.AudioPath != "" {
		t.Errorf("Reset() left residue: %+v", st)
	}
	if st.Settings.Language != "ru" {
		t.Errorf("settings lost on user reset: %+v", st.Settings)
	}
}

func TestConfigureUpdatesSettingsOnly(t *testing.T) {
	r := newRig(t, nil)

	r.step(t, "s1", &Input{Name: "notes.txt", Content: []byte("hello"), Kind: KindText})

	st, err := r.ctrl.Configure(context.Background(), "s1", Settings{
		Language:            "de",
		Model:               "gpt-4o",
		SystemPrompt:        "be thorough",
		ReviewBeforeSummary: true,
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if st.Stage != StageTranscriptReady || st.Transcript != "hello" {
		t.Errorf("Configure() touched artifacts: %+v", st)
	}

	// the freshly enabled review flag opens the gate instead of summarizing
	out := r.step(t, "s1", nil)
	if !out.Waiting {
		t.Error("gate not opened after review was enabled")
	}
	if r.sum.calls != 0 {
		t.Errorf("summarizer calls = %d, want 0", r.sum.calls)
	}
}
