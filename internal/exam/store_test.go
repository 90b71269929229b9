package exam

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

func fourQuestionSet() *model.QuestionSet {
	return &model.QuestionSet{
		Subject:       "physics",
		ClassCategory: "SS2",
		Questions: []model.Question{
			{ID: "q1", Text: "one", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0},
			{ID: "q2", Text: "two", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1},
			{ID: "q3", Text: "three", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2},
			{ID: "q4", Text: "four", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 3},
		},
		TimeAllowedSeconds: 3600,
	}
}

func newTestStore(t *testing.T, set *model.QuestionSet) *Store {
	t.Helper()
	return NewStore(set, NewHooks(), zerolog.Nop())
}

func TestStoreStartOnce(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	if err := s.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if s.StartedAt().IsZero() {
		t.Error("StartedAt should be set after Start")
	}
}

func TestSelectAnswerLocksQuestion(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())

	qid, correct, err := s.SelectAnswer(0)
	if err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if qid != "q1" {
		t.Errorf("answered question id = %q, want q1", qid)
	}
	if !correct {
		t.Error("option 0 on q1 should grade correct")
	}

	// Locked: the recorded answer must survive any retry.
	if _, _, err := s.SelectAnswer(2); !errors.Is(err, ErrLockedQuestion) {
		t.Fatalf("re-select = %v, want ErrLockedQuestion", err)
	}
	state := s.State()
	if rec := state.Answers["q1"]; rec.SelectedIndex != 0 || !rec.IsCorrect {
		t.Errorf("answer overwritten after lock: %+v", rec)
	}
}

func TestSelectAnswerValidatesOption(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	for _, idx := range []int{-1, 4, 10} {
		if _, _, err := s.SelectAnswer(idx); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("SelectAnswer(%d) = %v, want ErrInvalidOption", idx, err)
		}
	}
	if got := s.Progress().Answered; got != 0 {
		t.Errorf("invalid selections must not record answers, got %d", got)
	}
}

func TestSelectAnswerAfterFinish(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	if !s.latchFinish() {
		t.Fatal("first latchFinish should win")
	}
	if _, _, err := s.SelectAnswer(0); !errors.Is(err, ErrLockedQuestion) {
		t.Fatalf("select after finish = %v, want ErrLockedQuestion", err)
	}
}

func TestNavigation(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())

	s.Next()
	if idx, q := s.Current(); idx != 1 || q.ID != "q2" {
		t.Fatalf("after Next: index %d question %s", idx, q.ID)
	}

	s.GoTo(3)
	if idx, _ := s.Current(); idx != 3 {
		t.Fatalf("after GoTo(3): index %d", idx)
	}

	// Silent no-ops at the edges and out of range.
	s.Next()
	if idx, _ := s.Current(); idx != 3 {
		t.Errorf("Next at last question moved to %d", idx)
	}
	s.GoTo(99)
	s.GoTo(-1)
	if idx, _ := s.Current(); idx != 3 {
		t.Errorf("out-of-range GoTo moved to %d", idx)
	}

	s.GoTo(0)
	s.Previous()
	if idx, _ := s.Current(); idx != 0 {
		t.Errorf("Previous at first question moved to %d", idx)
	}
}

func TestAnsweringDoesNotMoveCursor(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	s.GoTo(2)
	if _, _, err := s.SelectAnswer(1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if idx, _ := s.Current(); idx != 2 {
		t.Errorf("SelectAnswer moved cursor to %d", idx)
	}
}

func TestSelectAnswerReportsGradedQuestion(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())

	// A stale pre-read of the cursor must not leak into the grading
	// outcome: the id comes from SelectAnswer itself, resolved under the
	// same lock that records the answer.
	_, stale := s.Current()
	s.Next()

	qid, correct, err := s.SelectAnswer(1)
	if err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if qid == stale.ID {
		t.Fatalf("graded id %q matches the stale cursor read", qid)
	}
	if qid != "q2" {
		t.Errorf("graded question id = %q, want q2", qid)
	}
	if !correct {
		t.Error("option 1 on q2 should grade correct")
	}
	if rec, ok := s.State().Answers["q2"]; !ok || rec.SelectedIndex != 1 {
		t.Errorf("answer recorded as %+v", rec)
	}
}

func TestProgress(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())

	if p := s.Progress(); p.Answered != 0 || p.Remaining != 4 || p.Percent != 0 {
		t.Fatalf("initial progress %+v", p)
	}

	s.SelectAnswer(0)
	s.Next()
	s.SelectAnswer(3)

	p := s.Progress()
	if p.Answered != 2 || p.Remaining != 2 || p.Percent != 50 {
		t.Fatalf("progress after two answers %+v", p)
	}
}

func TestProgressEmptySet(t *testing.T) {
	s := newTestStore(t, &model.QuestionSet{TimeAllowedSeconds: 60})
	if p := s.Progress(); p.Answered != 0 || p.Remaining != 0 || p.Percent != 0 {
		t.Fatalf("empty-set progress %+v", p)
	}
	if _, _, err := s.SelectAnswer(0); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("select on empty set = %v, want ErrInvalidOption", err)
	}
}

func TestToggleFlag(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())

	if !s.ToggleFlag("q2") {
		t.Fatal("first toggle should flag")
	}
	if s.ToggleFlag("q2") {
		t.Fatal("second toggle should unflag")
	}

	// Flagging an answered question neither answers nor locks anything new.
	s.SelectAnswer(0)
	s.ToggleFlag("q1")
	if got := s.Progress().Answered; got != 1 {
		t.Errorf("flag changed answered count to %d", got)
	}
	state := s.State()
	if len(state.FlaggedIDs) != 1 || state.FlaggedIDs[0] != "q1" {
		t.Errorf("FlaggedIDs = %v", state.FlaggedIDs)
	}
}

func TestFinishLatchIsOneWay(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	if !s.latchFinish() {
		t.Fatal("first latchFinish should return true")
	}
	for i := 0; i < 3; i++ {
		if s.latchFinish() {
			t.Fatal("latchFinish won twice")
		}
	}
	if !s.Finished() {
		t.Fatal("Finished should report true after latch")
	}
}

func TestFinishedFreezesCounters(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	s.setRemaining(100)
	got := s.addStrike()
	if got != 1 {
		t.Fatalf("addStrike = %d, want 1", got)
	}

	s.latchFinish()
	s.setRemaining(5)
	if s.RemainingSeconds() != 100 {
		t.Errorf("remaining mutated after finish: %d", s.RemainingSeconds())
	}
	if s.addStrike() != 1 {
		t.Errorf("strikes grew after finish: %d", s.Strikes())
	}
	s.GoTo(2)
	if idx, _ := s.Current(); idx != 0 {
		t.Errorf("navigation after finish moved cursor to %d", idx)
	}
	if s.ToggleFlag("q3") {
		t.Error("flagging after finish should be refused")
	}
}

func TestStateSnapshotIsIsolated(t *testing.T) {
	s := newTestStore(t, fourQuestionSet())
	s.SelectAnswer(1)

	state := s.State()
	state.Answers["q9"] = model.AnswerRecord{SelectedIndex: 2}
	state.LockedIDs = append(state.LockedIDs, "q9")

	fresh := s.State()
	if _, ok := fresh.Answers["q9"]; ok {
		t.Error("mutating a snapshot leaked into the store")
	}
	if len(fresh.LockedIDs) != 1 {
		t.Errorf("LockedIDs = %v", fresh.LockedIDs)
	}
}
