package exam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

type fakeCleaner struct {
	calls int32
}

func (f *fakeCleaner) Clear(context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func newTestSubmitter(t *testing.T, store *Store, endpoint string, cleaner Cleaner) *Submitter {
	t.Helper()
	tm := NewTimer()
	tm.interval = time.Hour
	return NewSubmitter(uuid.New(), store, tm, nil, NewHooks(), endpoint, nil, cleaner, zerolog.Nop())
}

func TestSubmitComputesResult(t *testing.T) {
	store := newTestStore(t, fourQuestionSet())
	store.Start()

	// Answer the four questions 0, 1, 0, 3: three correct, one wrong.
	store.SelectAnswer(0)
	store.Next()
	store.SelectAnswer(1)
	store.Next()
	store.SelectAnswer(0)
	store.Next()
	store.SelectAnswer(3)

	sub := newTestSubmitter(t, store, "", nil)
	res := sub.Submit(context.Background(), TriggerUser)

	if res.Score != 75 || res.Correct != 3 || res.Total != 4 {
		t.Fatalf("result %+v, want score 75 correct 3 total 4", res)
	}
	if res.Answered != 4 || res.Skipped != 0 {
		t.Fatalf("answered %d skipped %d", res.Answered, res.Skipped)
	}
	if res.Status != model.ResultStatusCompleted {
		t.Fatalf("status %q, want completed", res.Status)
	}
	if res.SubmittedAt.IsZero() {
		t.Fatal("SubmittedAt not set")
	}
}

func TestSubmitTimeoutGradesAnsweredOnly(t *testing.T) {
	store := newTestStore(t, fourQuestionSet())
	store.Start()

	store.SelectAnswer(0)
	store.Next()
	store.SelectAnswer(1)

	res := newTestSubmitter(t, store, "", nil).Submit(context.Background(), TriggerTimeout)

	if res.Answered != 2 || res.Skipped != 2 {
		t.Fatalf("answered %d skipped %d, want 2 and 2", res.Answered, res.Skipped)
	}
	if res.Score != 50 || res.Correct != 2 {
		t.Fatalf("score %d correct %d, want 50 and 2", res.Score, res.Correct)
	}
	if res.Status != model.ResultStatusTimeout {
		t.Fatalf("status %q, want timeout", res.Status)
	}
}

func TestSubmitEmptySetScoresZero(t *testing.T) {
	store := newTestStore(t, &model.QuestionSet{TimeAllowedSeconds: 60})
	store.Start()

	res := newTestSubmitter(t, store, "", nil).Submit(context.Background(), TriggerUser)
	if res.Score != 0 || res.Total != 0 || res.Answered != 0 {
		t.Fatalf("empty set result %+v", res)
	}
}

func TestSubmitExactlyOnce(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		var res model.Result
		if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
			t.Errorf("decode posted result: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newTestStore(t, fourQuestionSet())
	store.Start()
	store.SelectAnswer(0)

	cleaner := &fakeCleaner{}
	sub := newTestSubmitter(t, store, srv.URL, cleaner)

	// All three triggers race; exactly one wins.
	triggers := []Trigger{TriggerUser, TriggerTimeout, TriggerViolation}
	results := make([]*model.Result, len(triggers))
	var wg sync.WaitGroup
	for i, trig := range triggers {
		wg.Add(1)
		go func(i int, trig Trigger) {
			defer wg.Done()
			results[i] = sub.Submit(context.Background(), trig)
		}(i, trig)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&posts); n != 1 {
		t.Fatalf("result posted %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&cleaner.calls); n != 1 {
		t.Fatalf("cleaner called %d times, want 1", n)
	}
	for i, res := range results {
		if res == nil {
			t.Fatalf("trigger %d got nil result", i)
		}
		if res != results[0] && *res != *results[0] {
			t.Fatalf("trigger %d got a different result: %+v vs %+v", i, res, results[0])
		}
	}
	if got := sub.Result(); got == nil || got.Score != results[0].Score {
		t.Fatalf("Result() = %+v", got)
	}
}

func TestSubmitRetriesThenGivesUp(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newTestStore(t, fourQuestionSet())
	store.Start()

	// Failure is swallowed: the local result is still returned.
	res := newTestSubmitter(t, store, srv.URL, nil).Submit(context.Background(), TriggerUser)
	if res == nil {
		t.Fatal("result lost to POST failure")
	}
	if n := atomic.LoadInt32(&posts); n != submitAttempts {
		t.Fatalf("posted %d times, want %d", n, submitAttempts)
	}
}

func TestSubmitSucceedsOnRetry(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&posts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := newTestStore(t, fourQuestionSet())
	store.Start()

	newTestSubmitter(t, store, srv.URL, nil).Submit(context.Background(), TriggerUser)
	if n := atomic.LoadInt32(&posts); n != 2 {
		t.Fatalf("posted %d times, want 2", n)
	}
}

func TestSubmitFreezesAttempt(t *testing.T) {
	store := newTestStore(t, fourQuestionSet())
	store.Start()

	sub := newTestSubmitter(t, store, "", nil)
	sub.Submit(context.Background(), TriggerUser)

	if _, _, err := store.SelectAnswer(0); err == nil {
		t.Fatal("answering after submission should fail")
	}
	if !store.Finished() {
		t.Fatal("store not finished after submission")
	}
}

func TestResultNilWhileLive(t *testing.T) {
	store := newTestStore(t, fourQuestionSet())
	store.Start()
	sub := newTestSubmitter(t, store, "", nil)
	if sub.Result() != nil {
		t.Fatal("Result should be nil before submission")
	}
}
