package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle of an exam attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// AnswerRecord is the immutable record of one answered question. Once
// written it is never replaced; the question is locked at the moment of
// the first selection.
type AnswerRecord struct {
	SelectedIndex int  `json:"selected_index"`
	IsCorrect     bool `json:"is_correct"`
}

// Progress is a pure summary of answering progress, safe for UI polling.
type Progress struct {
	Answered  int     `json:"answered"`
	Remaining int     `json:"remaining"`
	Percent   float64 `json:"percent"`
}

// AttemptState is the resume payload returned after a page reload: which
// questions are already answered (and locked), where the cursor is, and how
// much time is left.
type AttemptState struct {
	AttemptID        uuid.UUID               `json:"attempt_id"`
	CurrentIndex     int                     `json:"current_index"`
	Answers          map[string]AnswerRecord `json:"answers"`
	LockedIDs        []string                `json:"locked_ids"`
	FlaggedIDs       []string                `json:"flagged_ids"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	StrikeCount      int                     `json:"strike_count"`
	Started          bool                    `json:"started"`
	Finished         bool                    `json:"finished"`
}

// StartAttemptRequest is the payload for opening a new exam attempt.
type StartAttemptRequest struct {
	StudentID     string `json:"student_id" binding:"required,min=1,max=64"`
	Subject       string `json:"subject" binding:"required,min=2,max=100"`
	ClassCategory string `json:"class_category" binding:"required,min=2,max=10"`
}

// AnswerRequest selects an option for the current question.
type AnswerRequest struct {
	OptionIndex *int `json:"option_index" binding:"required,min=0,max=3"`
}

// NavigateRequest moves the question cursor. Either a direction or an
// absolute index must be given.
type NavigateRequest struct {
	Direction string `json:"direction" binding:"omitempty,oneof=next previous"`
	Index     *int   `json:"index" binding:"omitempty,min=0"`
}

// FlagRequest toggles the review flag on a question.
type FlagRequest struct {
	QuestionID string `json:"question_id" binding:"required,min=1,max=64"`
}

// SignalRequest reports one environment signal observed by the browser.
type SignalRequest struct {
	Type        string `json:"type" binding:"required,oneof=visibility blur window_metrics offline online reload"`
	OuterWidth  int    `json:"outer_width" binding:"omitempty,min=0"`
	InnerWidth  int    `json:"inner_width" binding:"omitempty,min=0"`
	OuterHeight int    `json:"outer_height" binding:"omitempty,min=0"`
	InnerHeight int    `json:"inner_height" binding:"omitempty,min=0"`
}

// Attempt is the persistence-facing view of one exam attempt.
type Attempt struct {
	ID            uuid.UUID     `json:"id"`
	StudentID     string        `json:"student_id"`
	Subject       string        `json:"subject"`
	ClassCategory string        `json:"class_category"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Status        AttemptStatus `json:"status"`
}
