package workflow

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores for unknown sessions.
var ErrNotFound = errors.New("workflow: session not found")

// MissingCredentialError blocks a transition whose provider credential is
// absent. It is a configuration problem, not a pipeline failure: the stage
// is left untouched and the transition becomes runnable again once the
// credential appears.
type MissingCredentialError struct {
	Credential string
	Stage      Stage
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("cannot proceed: missing %s", e.Credential)
}

// StageError is a recoverable failure of one pipeline stage. The stage did
// not advance and the same transition is retried on the next invocation.
type StageError struct {
	Op  string
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// DecodeError reports a text artifact whose bytes are not valid text. The
// fingerprint is still recorded so the same bad artifact is not re-decoded
// on every re-entry.
type DecodeError struct {
	Name string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("artifact %s is not valid UTF-8 text", e.Name)
}
