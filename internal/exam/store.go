package exam

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

// Store owns the canonical state of one attempt. Every other component
// reads snapshots and mutates through these methods only; the locking and
// latching invariants cannot be bypassed by writing fields directly.
type Store struct {
	mu sync.Mutex

	questions   []model.Question
	timeAllowed int

	current   int
	answers   map[string]model.AnswerRecord
	locked    map[string]struct{}
	flagged   map[string]struct{}
	remaining int
	strikes   int
	started   bool
	finished  bool
	startedAt time.Time

	hooks *Hooks
	log   zerolog.Logger
}

// NewStore creates a Store over a normalized question set. The attempt is
// not started yet; Start flips it exactly once.
func NewStore(set *model.QuestionSet, hooks *Hooks, log zerolog.Logger) *Store {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Store{
		questions:   set.Questions,
		timeAllowed: set.TimeAllowedSeconds,
		answers:     make(map[string]model.AnswerRecord),
		locked:      make(map[string]struct{}),
		flagged:     make(map[string]struct{}),
		remaining:   set.TimeAllowedSeconds,
		hooks:       hooks,
		log:         log.With().Str("component", "session_store").Logger(),
	}
}

// Start marks the attempt as started. The second call fails; started is a
// one-way flag.
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.startedAt = time.Now()
	return nil
}

// SelectAnswer records the option chosen for the current question and locks
// the question immediately. It reports the ID of the question actually
// graded, which is resolved under the lock so concurrent navigation cannot
// detach the grading outcome from its question. Re-selection of a locked
// question, or any selection after the attempt finished, reports
// ErrLockedQuestion and changes nothing.
func (s *Store) SelectAnswer(optionIndex int) (string, bool, error) {
	s.mu.Lock()

	if len(s.questions) == 0 {
		s.mu.Unlock()
		return "", false, ErrInvalidOption
	}

	q := s.questions[s.current]
	if s.finished {
		s.mu.Unlock()
		return q.ID, false, ErrLockedQuestion
	}
	if _, isLocked := s.locked[q.ID]; isLocked {
		s.mu.Unlock()
		return q.ID, false, ErrLockedQuestion
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		s.mu.Unlock()
		return q.ID, false, ErrInvalidOption
	}

	isCorrect := optionIndex == q.CorrectIndex
	s.answers[q.ID] = model.AnswerRecord{SelectedIndex: optionIndex, IsCorrect: isCorrect}
	s.locked[q.ID] = struct{}{}
	s.mu.Unlock()

	s.hooks.emitAnswerSelected(q.ID, isCorrect)
	return q.ID, isCorrect, nil
}

// GoTo moves the cursor. Out-of-range indexes are a silent no-op; racing
// navigation buttons are expected and must not error.
func (s *Store) GoTo(index int) {
	s.mu.Lock()
	if s.finished || index < 0 || index >= len(s.questions) || index == s.current {
		s.mu.Unlock()
		return
	}
	s.current = index
	q := s.questions[index]
	s.mu.Unlock()

	s.hooks.emitQuestionChanged(index, q)
}

// Next advances the cursor by one. At the last question it changes nothing;
// advancing past the end is the submission flow's decision, not the
// store's.
func (s *Store) Next() {
	s.mu.Lock()
	next := s.current + 1
	s.mu.Unlock()
	s.GoTo(next)
}

// Previous moves the cursor back by one, clamped at the first question.
func (s *Store) Previous() {
	s.mu.Lock()
	prev := s.current - 1
	s.mu.Unlock()
	s.GoTo(prev)
}

// ToggleFlag flips the review flag on a question and reports the new state.
// Flagging never answers or locks.
func (s *Store) ToggleFlag(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	if _, ok := s.flagged[questionID]; ok {
		delete(s.flagged, questionID)
		return false
	}
	s.flagged[questionID] = struct{}{}
	return true
}

// Progress summarizes answering progress. Pure and cheap; safe to call at
// any polling frequency.
func (s *Store) Progress() model.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.questions)
	answered := len(s.answers)
	var percent float64
	if total > 0 {
		percent = math.Round(float64(answered)/float64(total)*10000) / 100
	}
	return model.Progress{
		Answered:  answered,
		Remaining: total - answered,
		Percent:   percent,
	}
}

// Current returns the cursor position and the question under it.
func (s *Store) Current() (int, model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return 0, model.Question{}
	}
	return s.current, s.questions[s.current]
}

// QuestionCount reports the fixed size of the set.
func (s *Store) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// TimeAllowedSeconds reports the total time budget of the attempt.
func (s *Store) TimeAllowedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeAllowed
}

// RemainingSeconds reports the countdown value last written by the timer.
func (s *Store) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Strikes reports the accumulated integrity strike count.
func (s *Store) Strikes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strikes
}

// Started reports whether the attempt has started.
func (s *Store) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Finished reports whether the finished latch is set.
func (s *Store) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// StartedAt reports the wall-clock start of the attempt.
func (s *Store) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// State snapshots everything the UI needs to resume after a reload.
func (s *Store) State() model.AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make(map[string]model.AnswerRecord, len(s.answers))
	for id, rec := range s.answers {
		answers[id] = rec
	}
	locked := make([]string, 0, len(s.locked))
	for id := range s.locked {
		locked = append(locked, id)
	}
	flagged := make([]string, 0, len(s.flagged))
	for id := range s.flagged {
		flagged = append(flagged, id)
	}

	return model.AttemptState{
		CurrentIndex:     s.current,
		Answers:          answers,
		LockedIDs:        locked,
		FlaggedIDs:       flagged,
		RemainingSeconds: s.remaining,
		StrikeCount:      s.strikes,
		Started:          s.started,
		Finished:         s.finished,
	}
}

// answersSnapshot copies the answer map for grading.
func (s *Store) answersSnapshot() (map[string]model.AnswerRecord, []model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make(map[string]model.AnswerRecord, len(s.answers))
	for id, rec := range s.answers {
		answers[id] = rec
	}
	return answers, s.questions
}

// setRemaining is the timer's write path. Ignored once finished so a stray
// tick cannot mutate a terminal attempt.
func (s *Store) setRemaining(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	s.remaining = seconds
}

// addStrike is the integrity monitor's write path. Strikes only grow, and
// stop growing once finished. Returns the new count.
func (s *Store) addStrike() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s.strikes
	}
	s.strikes++
	return s.strikes
}

// latchFinish sets the one-way finished flag. Only the first caller gets
// true; everyone racing after that observes the latch and short-circuits.
// This is the sole mechanism guarding exactly-once submission, so it must
// stay synchronous.
func (s *Store) latchFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	return true
}
