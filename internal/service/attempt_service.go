package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/config"
	"github.com/acetosyn/Emis-student-exam2025/internal/exam"
	"github.com/acetosyn/Emis-student-exam2025/internal/model"
	"github.com/acetosyn/Emis-student-exam2025/internal/repository"
	"github.com/acetosyn/Emis-student-exam2025/internal/worker"
)

// Common attempt errors.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptActive   = errors.New("an attempt is already in progress for this student")
)

// Mirror is the slice of the Redis attempt shadow the service depends on.
// *repository.MirrorRepository is the production implementation.
type Mirror interface {
	InitAttempt(ctx context.Context, attemptID uuid.UUID, studentID string) error
	SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID string, rec model.AnswerRecord) error
	SaveState(ctx context.Context, state model.AttemptState) error
	State(ctx context.Context, attemptID uuid.UUID) (*model.AttemptState, error)
	ActiveAttemptID(ctx context.Context, studentID string) (uuid.UUID, error)
	Reloads(ctx context.Context, attemptID uuid.UUID) (int64, error)
	PublishEvent(ctx context.Context, attemptID uuid.UUID, event any) error
	Bind(attemptID uuid.UUID, studentID string) *repository.AttemptMirror
}

// AttemptService owns every live exam session in this process. Sessions
// are in-memory and authoritative; Redis mirrors them for resume and the
// persistence queues carry the durable records.
type AttemptService struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*exam.Session
	byStudent map[string]uuid.UUID

	cfg    *config.Config
	loader *exam.Loader
	mirror Mirror
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewAttemptService creates an AttemptService.
func NewAttemptService(cfg *config.Config, loader *exam.Loader, mirror Mirror, rdb *redis.Client, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		sessions:  make(map[uuid.UUID]*exam.Session),
		byStudent: make(map[string]uuid.UUID),
		cfg:       cfg,
		loader:    loader,
		mirror:    mirror,
		rdb:       rdb,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start loads the question set and brings a new session live. One live
// attempt per student; a second start while the first runs is rejected.
func (s *AttemptService) Start(ctx context.Context, req model.StartAttemptRequest) (*exam.Session, error) {
	s.mu.Lock()
	if id, ok := s.byStudent[req.StudentID]; ok {
		if sess, live := s.sessions[id]; live && !sess.Finished() {
			s.mu.Unlock()
			return nil, ErrAttemptActive
		}
	}
	s.mu.Unlock()

	set, err := s.loader.Load(ctx, req.Subject, req.ClassCategory)
	if err != nil {
		return nil, err
	}
	if len(set.Questions) == 0 {
		return nil, &exam.ValidationError{Reason: "question set is empty"}
	}

	attemptID := uuid.New()
	bound := s.mirror.Bind(attemptID, req.StudentID)

	sess := exam.NewSession(set, exam.Options{
		AttemptID:      attemptID,
		StudentID:      req.StudentID,
		ResultEndpoint: s.cfg.ResultEndpoint,
		Monitor: exam.MonitorConfig{
			ArmDelay:     s.cfg.MonitorArmDelay,
			OfflineGrace: s.cfg.OfflineGrace,
		},
		Reloads: bound,
		Cleaner: bound,
		Log:     s.log,
	})

	s.wireHooks(sess)

	s.mu.Lock()
	s.sessions[attemptID] = sess
	s.byStudent[req.StudentID] = attemptID
	s.mu.Unlock()

	if err := s.mirror.InitAttempt(ctx, attemptID, req.StudentID); err != nil {
		s.log.Warn().Err(err).Msg("Attempt mirror init failed")
	}

	if err := sess.Start(ctx); err != nil {
		s.mu.Lock()
		delete(s.sessions, attemptID)
		delete(s.byStudent, req.StudentID)
		s.mu.Unlock()
		return nil, fmt.Errorf("start session: %w", err)
	}

	return sess, nil
}

// Get resolves a live session by attempt ID.
func (s *AttemptService) Get(attemptID uuid.UUID) (*exam.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return sess, nil
}

// ActiveForStudent resolves the student's live session, if any.
func (s *AttemptService) ActiveForStudent(studentID string) (*exam.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byStudent[studentID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return sess, nil
}

// MirroredAttempt reads the resume snapshot of a student's attempt straight
// from the Redis mirror. It is the fallback when the session is not live in
// this process: after a restart, or when another instance owns it. Returns
// ErrAttemptNotFound when the mirror holds nothing for the student.
func (s *AttemptService) MirroredAttempt(ctx context.Context, studentID string) (*model.AttemptState, int64, error) {
	attemptID, err := s.mirror.ActiveAttemptID(ctx, studentID)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve mirrored attempt: %w", err)
	}
	if attemptID == uuid.Nil {
		return nil, 0, ErrAttemptNotFound
	}

	state, err := s.mirror.State(ctx, attemptID)
	if err != nil {
		return nil, 0, fmt.Errorf("read mirrored state: %w", err)
	}
	if state == nil {
		return nil, 0, ErrAttemptNotFound
	}

	reloads, err := s.mirror.Reloads(ctx, attemptID)
	if err != nil {
		// The snapshot is still usable without the reload count.
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Reload count read failed")
		reloads = 0
	}
	return state, reloads, nil
}

// MirrorState snapshots the session into Redis. Called after mutating
// operations so a reload sees fresh state.
func (s *AttemptService) MirrorState(ctx context.Context, sess *exam.Session) {
	if err := s.mirror.SaveState(ctx, sess.State()); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", sess.ID.String()).Msg("State mirror failed")
	}
}

// wireHooks connects session events to the mirror, the persistence queues
// and the proctoring channel.
func (s *AttemptService) wireHooks(sess *exam.Session) {
	attemptID := sess.ID
	studentID := sess.StudentID

	sess.Hooks().OnAnswerSelected(func(questionID string, isCorrect bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		state := sess.State()
		rec, ok := state.Answers[questionID]
		if !ok {
			return
		}
		if err := s.mirror.SaveAnswer(ctx, attemptID, questionID, rec); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Answer mirror failed")
		}
		if err := s.mirror.SaveState(ctx, state); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("State mirror failed")
		}
	})

	sess.Hooks().OnViolationWarning(func(reason string) {
		s.enqueueViolation(attemptID, studentID, reason, sess.State().StrikeCount, false)
	})

	sess.Hooks().OnFinished(func(result model.Result) {
		if result.Trigger == string(exam.TriggerViolation) {
			s.enqueueViolation(attemptID, studentID, "terminated", sess.State().StrikeCount, true)
		}
		s.enqueueResult(sess, result)

		s.mu.Lock()
		delete(s.sessions, attemptID)
		if s.byStudent[studentID] == attemptID {
			delete(s.byStudent, studentID)
		}
		s.mu.Unlock()
	})
}

func (s *AttemptService) enqueueResult(sess *exam.Session, result model.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	payload := worker.ResultPayload{
		AttemptID:        result.AttemptID.String(),
		StudentID:        sess.StudentID,
		Subject:          sess.Subject(),
		ClassCategory:    sess.ClassCategory(),
		Score:            result.Score,
		Correct:          result.Correct,
		Total:            result.Total,
		Answered:         result.Answered,
		Skipped:          result.Skipped,
		TimeTakenSeconds: result.TimeTakenSeconds,
		Status:           string(result.Status),
		Trigger:          result.Trigger,
		SubmittedAt:      result.SubmittedAt,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("Result payload marshal failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", payload.AttemptID).Msg("Result enqueue failed")
	}

	if err := s.mirror.PublishEvent(ctx, result.AttemptID, map[string]any{
		"type":   "finished",
		"score":  result.Score,
		"status": result.Status,
	}); err != nil {
		s.log.Debug().Err(err).Msg("Finish event publish failed")
	}
}

func (s *AttemptService) enqueueViolation(attemptID uuid.UUID, studentID, reason string, strikes int, terminal bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := worker.ViolationPayload{
		AttemptID:  attemptID.String(),
		StudentID:  studentID,
		Reason:     reason,
		Strikes:    strikes,
		Terminal:   terminal,
		RecordedAt: time.Now().Unix(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("Violation payload marshal failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", payload.AttemptID).Msg("Violation enqueue failed")
	}

	if err := s.mirror.PublishEvent(ctx, attemptID, map[string]any{
		"type":     "violation",
		"reason":   reason,
		"terminal": terminal,
	}); err != nil {
		s.log.Debug().Err(err).Msg("Violation event publish failed")
	}
}
