package transcriber

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoOutput means the transcriber exited cleanly but produced no SRT
// file matching the audio basename in the output directory.
var ErrNoOutput = errors.New("transcriber: no output file produced")

// ErrAmbiguousOutput means more than one SRT file matched the audio
// basename in the output directory.
var ErrAmbiguousOutput = errors.New("transcriber: ambiguous output files")

// ErrCancelled means the driver terminated the child process because its
// context was cancelled (cooperative cancellation, SPEC_FULL.md §4.6).
var ErrCancelled = errors.New("transcriber: cancelled")

// ExitError wraps a non-zero transcriber exit, carrying the tail of its
// captured stderr output for diagnostics (spec.md §4.3: at least the last
// 50 lines).
type ExitError struct {
	ExitCode  int
	StderrTail []string
	Err       error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("transcriber: exit code %d: %s", e.ExitCode, strings.Join(e.StderrTail, " | "))
}

func (e *ExitError) Unwrap() error { return e.Err }
