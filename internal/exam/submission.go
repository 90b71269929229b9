package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

// Trigger identifies which path converged on submission.
type Trigger string

const (
	TriggerUser      Trigger = "user"
	TriggerTimeout   Trigger = "timeout"
	TriggerViolation Trigger = "violation"
)

// submitAttempts bounds the result POST: one try plus two immediate
// retries, then give up. Exhaustion is logged and swallowed — the local
// result stands and the candidate is never stuck on a finished exam.
const submitAttempts = 3

// Cleaner clears whatever session-scoped mirror exists for the attempt, so
// a later page load cannot resurrect a finished exam.
type Cleaner interface {
	Clear(ctx context.Context) error
}

// Submitter computes the final result and guarantees it is finalized
// exactly once, no matter how many triggers race onto it.
type Submitter struct {
	mu sync.Mutex

	attemptID uuid.UUID
	store     *Store
	timer     *Timer
	monitor   *Monitor
	hooks     *Hooks
	endpoint  string
	client    *http.Client
	cleaner   Cleaner
	log       zerolog.Logger

	result *model.Result
}

// NewSubmitter wires the submission path for one attempt. endpoint may be
// empty, in which case no network write is attempted. cleaner may be nil.
func NewSubmitter(attemptID uuid.UUID, store *Store, timer *Timer, monitor *Monitor, hooks *Hooks, endpoint string, client *http.Client, cleaner Cleaner, log zerolog.Logger) *Submitter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Submitter{
		attemptID: attemptID,
		store:     store,
		timer:     timer,
		monitor:   monitor,
		hooks:     hooks,
		endpoint:  endpoint,
		client:    client,
		cleaner:   cleaner,
		log:       log.With().Str("component", "submission").Str("attempt_id", attemptID.String()).Logger(),
	}
}

// Submit finalizes the attempt. The finished latch is taken synchronously
// before any network round-trip, so a second trigger arriving during the
// first trigger's POST observes the latch and gets the already-computed
// result back. Every caller receives the identical result.
func (s *Submitter) Submit(ctx context.Context, trigger Trigger) *model.Result {
	s.mu.Lock()

	if !s.store.latchFinish() {
		result := s.result
		s.mu.Unlock()
		return result
	}

	s.timer.Stop()
	if s.monitor != nil {
		s.monitor.Detach()
	}

	result := s.compute(trigger)
	s.result = &result
	s.mu.Unlock()

	s.log.Info().
		Str("trigger", string(trigger)).
		Int("score", result.Score).
		Int("correct", result.Correct).
		Int("answered", result.Answered).
		Msg("Attempt finalized")

	// Network failure past this point cannot corrupt the result: it was
	// computed synchronously from state we already hold.
	if err := s.post(ctx, result); err != nil {
		s.log.Error().Err(err).Msg("Result POST failed, local result stands")
	}
	if s.cleaner != nil {
		if err := s.cleaner.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Mirror clear failed")
		}
	}

	s.hooks.emitFinished(result)
	return &result
}

// Result returns the finalized result, or nil while the attempt is live.
func (s *Submitter) Result() *model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Submitter) compute(trigger Trigger) model.Result {
	answers, questions := s.store.answersSnapshot()

	correct := 0
	for _, rec := range answers {
		if rec.IsCorrect {
			correct++
		}
	}

	total := len(questions)
	answered := len(answers)

	score := 0
	if total > 0 {
		score = int(math.Round(float64(correct) / float64(total) * 100))
	}

	timeTaken := 0
	if startedAt := s.store.StartedAt(); !startedAt.IsZero() {
		timeTaken = int(math.Round(time.Since(startedAt).Seconds()))
	}

	status := model.ResultStatusCompleted
	if trigger != TriggerUser {
		status = model.ResultStatusTimeout
	}

	return model.Result{
		AttemptID:        s.attemptID,
		Score:            score,
		Correct:          correct,
		Total:            total,
		Answered:         answered,
		Skipped:          total - answered,
		TimeTakenSeconds: timeTaken,
		SubmittedAt:      time.Now().UTC(),
		Status:           status,
		Trigger:          string(trigger),
	}
}

// post writes the payload to the configured endpoint with bounded,
// immediate retries.
func (s *Submitter) post(ctx context.Context, result model.Result) error {
	if s.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Result POST attempt failed")
	}

	return fmt.Errorf("after %d attempts: %w", submitAttempts, lastErr)
}
