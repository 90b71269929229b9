package exam

import (
	"errors"
	"fmt"
)

// Domain errors for the exam runtime.
var (
	// ErrLockedQuestion is reported when a selection targets a question that
	// already holds an answer, or an attempt that is finished. Non-fatal: the
	// existing AnswerRecord is left untouched.
	ErrLockedQuestion = errors.New("question is locked")

	// ErrInvalidOption is reported when the selected option index is outside
	// the current question's options.
	ErrInvalidOption = errors.New("option index out of range")

	// ErrTimerState is reported on an attempt to start a timer that already
	// ran to expiry or was stopped. This indicates an integration bug.
	ErrTimerState = errors.New("timer already expired or stopped")

	// ErrAlreadyStarted is reported on a second Start of the same attempt.
	ErrAlreadyStarted = errors.New("attempt already started")

	// ErrFinished is reported when an operation reaches an attempt whose
	// finished latch is set.
	ErrFinished = errors.New("attempt already finished")
)

// ResourceError wraps a question-set fetch or parse failure. The attempt
// never starts when loading fails; this is fatal to the attempt only.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("question set %s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ValidationError marks a question set that cannot be delivered at all: a
// question without a usable options array has nothing to render.
// Per-question grading problems are NOT validation errors; those recover
// with CorrectIndex = -1.
type ValidationError struct {
	QuestionID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Reason)
}
