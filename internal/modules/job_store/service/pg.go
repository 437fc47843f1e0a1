package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal_exec/internal/models"
	"signal_exec/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, signal_id, signal, status, attempt, claimed_at, last_error, created_at`

// PgStore — стор джобов поверх postgres. Эксклюзивность claim'а
// обеспечивает FOR UPDATE SKIP LOCKED.
type PgStore struct {
	db   db.TxManager
	opts Options
}

func NewPgStore(tm db.TxManager, opts Options) *PgStore {
	return &PgStore{db: tm, opts: opts}
}

func (s *PgStore) Enqueue(ctx context.Context, nj models.NewJob) (job models.ExecutionJob, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Enqueue: %w", err)
		}
	}()
	if err = nj.Validate(); err != nil {
		return job, err
	}
	id := nj.ID
	if id == "" {
		id = uuid.NewString()
	}

	var payload []byte
	if nj.Signal != nil {
		payload, err = sonic.Marshal(nj.Signal)
		if err != nil {
			return job, err
		}
	}

	row := s.db.Conn().QueryRow(ctx, `
		INSERT INTO execution_jobs (id, signal_id, signal, status, attempt)
		VALUES ($1, $2, $3, 'pending', 0)
		RETURNING `+jobColumns,
		id, nullString(nj.SignalID), payload,
	)
	return scanJob(row)
}

func (s *PgStore) Get(ctx context.Context, id string) (job models.ExecutionJob, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Get: %w", err)
		}
	}()
	row := s.db.Conn().QueryRow(ctx, `SELECT `+jobColumns+` FROM execution_jobs WHERE id = $1`, id)
	job, err = scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, models.ErrJobNotFound
	}
	return job, err
}

func (s *PgStore) CountByStatus(ctx context.Context) (out map[models.JobStatus]int, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.CountByStatus: %w", err)
		}
	}()
	rows, err := s.db.Conn().Query(ctx, `SELECT status, count(*) FROM execution_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = make(map[models.JobStatus]int, 4)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err = rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.JobStatus(status)] = n
	}
	return out, rows.Err()
}

// ClaimJobs атомарно переводит до limit pending-джобов в claimed.
// Строки, уже залоченные конкурентным claim'ом, пропускаются.
func (s *PgStore) ClaimJobs(ctx context.Context, limit int) (jobs []models.ExecutionJob, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.ClaimJobs: %w", err)
		}
	}()
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Conn().Query(ctx, `
		WITH claimable AS (
			SELECT id
			FROM execution_jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE execution_jobs j
		SET status = 'claimed',
		    claimed_at = now(),
		    attempt = j.attempt + 1
		FROM claimable
		WHERE j.id = claimable.id
		RETURNING j.id, j.signal_id, j.signal, j.status, j.attempt, j.claimed_at, j.last_error, j.created_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs = make([]models.ExecutionJob, 0, limit)
	for rows.Next() {
		job, sErr := scanJob(rows)
		if sErr != nil {
			return nil, sErr
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PgStore) CompleteJob(ctx context.Context, id string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.CompleteJob: %w", err)
		}
	}()
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `
			UPDATE execution_jobs
			SET status = 'completed', claimed_at = NULL
			WHERE id = $1 AND status = 'claimed'
		`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		status, err := currentStatus(ctxTx, tx, id)
		if err != nil {
			return err
		}
		if status == models.JobCompleted {
			return nil
		}
		return fmt.Errorf("%w: %s -> completed", models.ErrInvalidTransition, status)
	})
}

func (s *PgStore) FailJob(ctx context.Context, id, message string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.FailJob: %w", err)
		}
	}()
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `
			UPDATE execution_jobs
			SET status = 'failed', claimed_at = NULL, last_error = $2
			WHERE id = $1 AND status = 'claimed'
		`, id, models.TruncateError(message))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		status, err := currentStatus(ctxTx, tx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> failed", models.ErrInvalidTransition, status)
	})
}

// ReclaimStale возвращает в pending claimed-джобы старше visibility.
// attempt не трогаем: он растёт только при следующем claim.
func (s *PgStore) ReclaimStale(ctx context.Context, visibility time.Duration) (n int, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.ReclaimStale: %w", err)
		}
	}()

	rows, err := s.db.Conn().Query(ctx, `
		WITH stale AS (
			SELECT id
			FROM execution_jobs
			WHERE status = 'claimed'
			  AND claimed_at <= now() - make_interval(secs => $1::float8)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE execution_jobs j
		SET status = CASE WHEN $2::int > 0 AND j.attempt >= $2::int THEN 'failed' ELSE 'pending' END,
		    last_error = CASE WHEN $2::int > 0 AND j.attempt >= $2::int
		                      THEN 'visibility timeout exceeded after ' || j.attempt || ' attempts'
		                      ELSE j.last_error END,
		    claimed_at = NULL
		FROM stale
		WHERE j.id = stale.id
		RETURNING j.status
	`, visibility.Seconds(), s.opts.MaxAttempts)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if err = rows.Scan(&status); err != nil {
			return 0, err
		}
		if models.JobStatus(status) == models.JobPending {
			n++
		}
	}
	return n, rows.Err()
}

func currentStatus(ctx context.Context, tx pgx.Tx, id string) (models.JobStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM execution_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrJobNotFound
	}
	return models.JobStatus(status), err
}

func scanJob(row pgx.Row) (models.ExecutionJob, error) {
	var (
		job       models.ExecutionJob
		signalID  *string
		payload   []byte
		status    string
		lastError *string
	)
	err := row.Scan(&job.ID, &signalID, &payload, &status, &job.Attempt, &job.ClaimedAt, &lastError, &job.CreatedAt)
	if err != nil {
		return models.ExecutionJob{}, err
	}
	job.Status = models.JobStatus(status)
	if signalID != nil {
		job.SignalID = *signalID
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	if len(payload) > 0 {
		var sig models.Signal
		if err := sonic.Unmarshal(payload, &sig); err != nil {
			// битый payload не должен ронять весь батч — воркер зафейлит джоб
			job.Signal = nil
			job.LastError = fmt.Sprintf("decode signal payload: %v", err)
			return job, nil
		}
		job.Signal = &sig
	}
	return job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
