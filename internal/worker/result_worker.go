package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acetosyn/Emis-student-exam2025/internal/config"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ResultWorker drains the result queue into PostgreSQL. Request handlers
// never touch the database on the submission path; they enqueue and move
// on, and this worker absorbs bursts at exam close.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// ResultPayload is the queue wire format for one finished attempt.
type ResultPayload struct {
	AttemptID        string    `json:"attempt_id"`
	StudentID        string    `json:"student_id"`
	Subject          string    `json:"subject"`
	ClassCategory    string    `json:"class_category"`
	Score            int       `json:"score"`
	Correct          int       `json:"correct"`
	Total            int       `json:"total"`
	Answered         int       `json:"answered"`
	Skipped          int       `json:"skipped"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	Status           string    `json:"status"`
	Trigger          string    `json:"trigger"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*ResultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(item) < 2 {
			continue
		}

		var p ResultPayload
		if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
			w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
			continue
		}

		batch = append(batch, &p)
	}
}

// flushSafe attempts bulk insert, then falls back to row-by-row with
// requeue on persistent failure.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*ResultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

// bulkInsert writes the whole batch in one UNNEST statement. The conflict
// clause makes redelivery harmless: the first stored row for an attempt
// wins.
func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*ResultPayload) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	studentIDs := make([]string, 0, n)
	subjects := make([]string, 0, n)
	classes := make([]string, 0, n)
	scores := make([]int, 0, n)
	corrects := make([]int, 0, n)
	totals := make([]int, 0, n)
	answereds := make([]int, 0, n)
	skippeds := make([]int, 0, n)
	timeTakens := make([]int, 0, n)
	statuses := make([]string, 0, n)
	triggers := make([]string, 0, n)
	submittedAts := make([]time.Time, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, aID)
		studentIDs = append(studentIDs, p.StudentID)
		subjects = append(subjects, p.Subject)
		classes = append(classes, p.ClassCategory)
		scores = append(scores, p.Score)
		corrects = append(corrects, p.Correct)
		totals = append(totals, p.Total)
		answereds = append(answereds, p.Answered)
		skippeds = append(skippeds, p.Skipped)
		timeTakens = append(timeTakens, p.TimeTakenSeconds)
		statuses = append(statuses, p.Status)
		triggers = append(triggers, p.Trigger)
		submittedAts = append(submittedAts, p.SubmittedAt)
	}

	query := `
		INSERT INTO exam_results (
			attempt_id, student_id, subject, class_category,
			score, correct, total, answered, skipped,
			time_taken_seconds, status, submit_trigger, submitted_at
		)
		SELECT * FROM UNNEST(
			$1::uuid[], $2::text[], $3::text[], $4::text[],
			$5::int[], $6::int[], $7::int[], $8::int[], $9::int[],
			$10::int[], $11::text[], $12::text[], $13::timestamptz[]
		)
		ON CONFLICT (attempt_id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query,
		attemptIDs, studentIDs, subjects, classes,
		scores, corrects, totals, answereds, skippeds,
		timeTakens, statuses, triggers, submittedAts,
	)
	return err
}

func (w *ResultWorker) fallbackInsert(ctx context.Context, batch []*ResultPayload) {
	requeueList := make([]*ResultPayload, 0)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping result with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx, `
			INSERT INTO exam_results (
				attempt_id, student_id, subject, class_category,
				score, correct, total, answered, skipped,
				time_taken_seconds, status, submit_trigger, submitted_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (attempt_id) DO NOTHING`,
			aID, p.StudentID, p.Subject, p.ClassCategory,
			p.Score, p.Correct, p.Total, p.Answered, p.Skipped,
			p.TimeTakenSeconds, p.Status, p.Trigger, p.SubmittedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", p.AttemptID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ResultWorker) requeue(ctx context.Context, items []*ResultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue results to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed results back to Redis")
	// Avoid thrashing while the database is down hard.
	time.Sleep(2 * time.Second)
}

func (w *ResultWorker) shutdown(batch []*ResultPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(batch) > 0 {
		w.flushSafe(shutdownCtx, batch)
	}
}
