package model

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus is the status carried on the submitted result payload.
// Forced submissions (expiry or integrity termination) report "timeout",
// matching what the result view expects; the precise trigger is kept
// separately for the stored record.
type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusTimeout   ResultStatus = "timeout"
)

// Result is the final, locally computed outcome of an attempt. It is
// authoritative for the candidate-facing result view even when the network
// write fails.
type Result struct {
	AttemptID        uuid.UUID    `json:"attempt_id"`
	Score            int          `json:"score"`
	Correct          int          `json:"correct"`
	Total            int          `json:"total"`
	Answered         int          `json:"answered"`
	Skipped          int          `json:"skipped"`
	TimeTakenSeconds int          `json:"timeTaken"`
	SubmittedAt      time.Time    `json:"submittedAt"`
	Status           ResultStatus `json:"status"`
	Trigger          string       `json:"trigger"`
}

// StoredResult is a persisted result row, as read back from PostgreSQL.
type StoredResult struct {
	ID               int64        `json:"id"`
	AttemptID        uuid.UUID    `json:"attempt_id"`
	StudentID        string       `json:"student_id"`
	Subject          string       `json:"subject"`
	ClassCategory    string       `json:"class_category"`
	Score            int          `json:"score"`
	Correct          int          `json:"correct"`
	Total            int          `json:"total"`
	Answered         int          `json:"answered"`
	Skipped          int          `json:"skipped"`
	TimeTakenSeconds int          `json:"time_taken_seconds"`
	Status           ResultStatus `json:"status"`
	Trigger          string       `json:"trigger"`
	SubmittedAt      time.Time    `json:"submitted_at"`
}
