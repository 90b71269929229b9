package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/acetosyn/Emis-student-exam2025/internal/config"
	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

// MirrorRepository keeps a Redis shadow of every live attempt: the resume
// snapshot, the answer hash and the reload counter. The in-process session
// stays authoritative; the mirror only exists so a page reload or a second
// server instance can rebuild the UI state.
type MirrorRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMirrorRepository creates a MirrorRepository. Keys expire after ttl so
// abandoned attempts do not accumulate.
func NewMirrorRepository(rdb *redis.Client, ttl time.Duration) *MirrorRepository {
	return &MirrorRepository{rdb: rdb, ttl: ttl}
}

// InitAttempt records a fresh attempt and maps the student to it.
func (r *MirrorRepository) InitAttempt(ctx context.Context, attemptID uuid.UUID, studentID string) error {
	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.StudentActiveAttemptKey(studentID), attemptID.String(), r.ttl)
	pipe.Del(ctx, config.CacheKey.AttemptReloadsKey(attemptID.String()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("init attempt mirror: %w", err)
	}
	return nil
}

// SaveAnswer mirrors one locked answer into the attempt's answer hash.
func (r *MirrorRepository) SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID string, rec model.AnswerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}

	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, questionID, raw)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror answer: %w", err)
	}
	return nil
}

// SaveState mirrors the full resume snapshot.
func (r *MirrorRepository) SaveState(ctx context.Context, state model.AttemptState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	key := config.CacheKey.AttemptStateKey(state.AttemptID.String())
	if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("mirror state: %w", err)
	}
	return nil
}

// State reads back the resume snapshot, or nil when none is mirrored.
func (r *MirrorRepository) State(ctx context.Context, attemptID uuid.UUID) (*model.AttemptState, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.AttemptStateKey(attemptID.String())).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read state mirror: %w", err)
	}

	var state model.AttemptState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode state mirror: %w", err)
	}
	return &state, nil
}

// ActiveAttemptID resolves the student's live attempt, or uuid.Nil when
// there is none.
func (r *MirrorRepository) ActiveAttemptID(ctx context.Context, studentID string) (uuid.UUID, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.StudentActiveAttemptKey(studentID)).Result()
	if err != nil {
		if err == redis.Nil {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("read active attempt: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse active attempt id: %w", err)
	}
	return id, nil
}

// IncrReload bumps the persisted reload counter for an attempt.
func (r *MirrorRepository) IncrReload(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	key := config.CacheKey.AttemptReloadsKey(attemptID.String())
	pipe := r.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr reloads: %w", err)
	}
	return incr.Val(), nil
}

// Reloads reads the current reload count without bumping it.
func (r *MirrorRepository) Reloads(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.AttemptReloadsKey(attemptID.String())).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("read reloads: %w", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reloads: %w", err)
	}
	return n, nil
}

// Clear drops every mirror key of an attempt. Called once at submission so
// a later page load cannot resurrect a finished exam.
func (r *MirrorRepository) Clear(ctx context.Context, attemptID uuid.UUID, studentID string) error {
	id := attemptID.String()
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptStateKey(id))
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(id))
	pipe.Del(ctx, config.CacheKey.AttemptReloadsKey(id))
	pipe.Del(ctx, config.CacheKey.StudentActiveAttemptKey(studentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear attempt mirror: %w", err)
	}
	return nil
}

// PublishEvent pushes one proctoring event onto the attempt's PubSub
// channel for monitor dashboards.
func (r *MirrorRepository) PublishEvent(ctx context.Context, attemptID uuid.UUID, event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.rdb.Publish(ctx, config.CacheKey.AttemptEventsChannel(attemptID.String()), raw).Err()
}

// AttemptMirror binds the repository to one attempt so it satisfies the
// session's per-attempt collaborator interfaces.
type AttemptMirror struct {
	repo      *MirrorRepository
	attemptID uuid.UUID
	studentID string
}

// Bind scopes the repository to a single attempt.
func (r *MirrorRepository) Bind(attemptID uuid.UUID, studentID string) *AttemptMirror {
	return &AttemptMirror{repo: r, attemptID: attemptID, studentID: studentID}
}

// IncrReload implements the session's reload counter.
func (m *AttemptMirror) IncrReload(ctx context.Context) (int64, error) {
	return m.repo.IncrReload(ctx, m.attemptID)
}

// Clear implements the session's mirror cleaner.
func (m *AttemptMirror) Clear(ctx context.Context) error {
	return m.repo.Clear(ctx, m.attemptID, m.studentID)
}
