package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionFlag     Action = "flag"
	ActionSignal   Action = "signal"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope carries every client action; unused fields are left
// empty for the action in question.
type RequestEnvelope struct {
	Action Action `json:"action"`

	// ActionAnswer
	OptionIndex *int `json:"option_index,omitempty"`

	// ActionNavigate
	Direction string `json:"direction,omitempty"`
	Index     *int   `json:"index,omitempty"`

	// ActionFlag
	QuestionID string `json:"question_id,omitempty"`

	// ActionSignal
	Signal      string `json:"signal,omitempty"`
	OuterWidth  int    `json:"outer_width,omitempty"`
	InnerWidth  int    `json:"inner_width,omitempty"`
	OuterHeight int    `json:"outer_height,omitempty"`
	InnerHeight int    `json:"inner_height,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventAnswerResult Event = "answer_result"
	EventQuestion     Event = "question"
	EventTick         Event = "tick"
	EventThreshold    Event = "threshold"
	EventViolation    Event = "violation_warning"
	EventFinished     Event = "finished"
	EventPong         Event = "pong"
)

type AnswerResultResponse struct {
	Event      Event       `json:"event"`
	QuestionID string      `json:"question_id"`
	IsCorrect  bool        `json:"is_correct"`
	Progress   interface{} `json:"progress"`
}

type QuestionResponse struct {
	Event    Event       `json:"event"`
	Index    int         `json:"index"`
	Question interface{} `json:"question"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type ThresholdResponse struct {
	Event Event  `json:"event"`
	Label string `json:"label"`
}

type ViolationResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type FinishedResponse struct {
	Event  Event       `json:"event"`
	Result interface{} `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
