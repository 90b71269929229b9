package model

// Question is a single multiple-choice question after loader normalization.
// CorrectIndex is resolved exactly once at load time; -1 means the authored
// answer could not be matched to any option and the question never grades
// as correct.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"-"`
}

// QuestionForStudent is the wire shape of a question sent to the browser.
// The correct index is never serialized.
type QuestionForStudent struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// ForStudent strips the answer key from a question.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{ID: q.ID, Text: q.Text, Options: q.Options}
}

// QuestionSet is a fully normalized exam paper. Question order is fixed for
// the lifetime of the attempt once loading (and any shuffling) completes.
type QuestionSet struct {
	Subject            string     `json:"subject"`
	ClassCategory      string     `json:"class_category"`
	Questions          []Question `json:"questions"`
	TimeAllowedSeconds int        `json:"time_allowed_seconds"`
}
