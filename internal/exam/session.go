package exam

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

// Options configures a single attempt session.
type Options struct {
	AttemptID      uuid.UUID
	StudentID      string
	ResultEndpoint string
	HTTPClient     *http.Client
	Monitor        MonitorConfig
	Reloads        ReloadCounter
	Cleaner        Cleaner
	// TickInterval overrides the one-second timer tick. Tests only.
	TickInterval time.Duration
	Log          zerolog.Logger
}

// Session is one candidate's attempt: the store, timer, integrity monitor
// and submitter wired together. It is the only shared mutable resource of
// the runtime; all mutation goes through the store's and submitter's
// guarded methods, so timer ticks, signal reports and HTTP calls may race
// freely.
type Session struct {
	ID        uuid.UUID
	StudentID string

	set       *model.QuestionSet
	hooks     *Hooks
	store     *Store
	timer     *Timer
	monitor   *Monitor
	submitter *Submitter
	log       zerolog.Logger
}

// NewSession builds a session over an already-loaded question set.
func NewSession(set *model.QuestionSet, opts Options) *Session {
	if opts.AttemptID == uuid.Nil {
		opts.AttemptID = uuid.New()
	}

	log := opts.Log.With().
		Str("attempt_id", opts.AttemptID.String()).
		Str("subject", set.Subject).
		Logger()

	s := &Session{
		ID:        opts.AttemptID,
		StudentID: opts.StudentID,
		set:       set,
		hooks:     NewHooks(),
		log:       log,
	}

	s.store = NewStore(set, s.hooks, log)
	s.timer = NewTimer()
	if opts.TickInterval > 0 {
		s.timer.interval = opts.TickInterval
	}

	warn := func(reason string) {
		s.hooks.emitViolation(reason)
	}
	terminate := func(reason string) {
		s.log.Warn().Str("reason", reason).Msg("Integrity termination")
		s.Submit(context.Background(), TriggerViolation)
	}
	s.monitor = NewMonitor(s.store, opts.Monitor, opts.Reloads, warn, terminate, log)

	s.submitter = NewSubmitter(
		opts.AttemptID, s.store, s.timer, s.monitor, s.hooks,
		opts.ResultEndpoint, opts.HTTPClient, opts.Cleaner, log,
	)

	return s
}

// Start begins the countdown and arms the integrity monitor. Exactly once
// per session.
func (s *Session) Start(ctx context.Context) error {
	if err := s.store.Start(); err != nil {
		return err
	}

	err := s.timer.Start(
		s.set.TimeAllowedSeconds,
		func(remaining int) {
			s.store.setRemaining(remaining)
			s.hooks.emitTick(remaining)
		},
		s.hooks.emitThreshold,
		func() {
			s.Submit(context.Background(), TriggerTimeout)
		},
	)
	if err != nil {
		return err
	}

	s.monitor.Arm()
	s.log.Info().
		Int("questions", len(s.set.Questions)).
		Int("time_allowed_seconds", s.set.TimeAllowedSeconds).
		Msg("Attempt started")
	return nil
}

// Hooks exposes the observer registry for UI decorators.
func (s *Session) Hooks() *Hooks { return s.hooks }

// Subject returns the display subject label.
func (s *Session) Subject() string { return s.set.Subject }

// ClassCategory returns the display class label.
func (s *Session) ClassCategory() string { return s.set.ClassCategory }

// QuestionCount reports the fixed set size.
func (s *Session) QuestionCount() int { return len(s.set.Questions) }

// TimeAllowedSeconds reports the attempt's total time budget.
func (s *Session) TimeAllowedSeconds() int { return s.set.TimeAllowedSeconds }

// CurrentQuestion returns the cursor position and the student-safe view of
// the question under it.
func (s *Session) CurrentQuestion() (int, model.QuestionForStudent) {
	idx, q := s.store.Current()
	return idx, q.ForStudent()
}

// SelectAnswer answers the current question. See Store.SelectAnswer.
func (s *Session) SelectAnswer(optionIndex int) (string, bool, error) {
	return s.store.SelectAnswer(optionIndex)
}

// StartedAt reports the wall-clock start of the attempt.
func (s *Session) StartedAt() time.Time { return s.store.StartedAt() }

// GoTo moves the cursor to an absolute index.
func (s *Session) GoTo(index int) { s.store.GoTo(index) }

// Next advances the cursor.
func (s *Session) Next() { s.store.Next() }

// Previous moves the cursor back.
func (s *Session) Previous() { s.store.Previous() }

// ToggleFlag flips the review flag on a question.
func (s *Session) ToggleFlag(questionID string) bool { return s.store.ToggleFlag(questionID) }

// Progress summarizes answering progress.
func (s *Session) Progress() model.Progress { return s.store.Progress() }

// State snapshots the resume payload.
func (s *Session) State() model.AttemptState {
	state := s.store.State()
	state.AttemptID = s.ID
	return state
}

// RemainingSeconds reports the countdown value.
func (s *Session) RemainingSeconds() int { return s.store.RemainingSeconds() }

// Finished reports whether the attempt reached its terminal state.
func (s *Session) Finished() bool { return s.store.Finished() }

// Observe routes one environment signal to the integrity monitor.
func (s *Session) Observe(ctx context.Context, sig Signal) {
	s.monitor.Observe(ctx, sig)
}

// Submit finalizes the attempt; idempotent across all triggers.
func (s *Session) Submit(ctx context.Context, trigger Trigger) *model.Result {
	return s.submitter.Submit(ctx, trigger)
}

// Result returns the finalized result, or nil while the attempt is live.
func (s *Session) Result() *model.Result { return s.submitter.Result() }
