package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/policykb/taxkb/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082502)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_jobs (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_stage ON pipeline_jobs(stage, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.PipelineJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_jobs (id, stage, status, total, processed, error, started_at, finished_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`,
		job.ID, string(job.Stage), string(job.Status), job.Total, job.Processed, job.Error,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.PipelineJob, error) {
	var (
		job        domain.PipelineJob
		stage      string
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, stage, status, total, processed, error, started_at, finished_at, created_at, updated_at
FROM pipeline_jobs WHERE id = $1
`, id).Scan(
		&job.ID, &stage, &status, &job.Total, &job.Processed, &job.Error,
		&startedAt, &finishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Stage = domain.PipelineStage(stage)
	job.Status = domain.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func (r *JobRepository) MarkRunning(ctx context.Context, id string, total int) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_jobs SET status = $2, total = $3, started_at = COALESCE(started_at, $4), updated_at = $4 WHERE id = $1
`, id, string(domain.JobRunning), total, now)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return requireJobRow(res, id)
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id string, processed int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_jobs SET processed = $2, updated_at = $3 WHERE id = $1
`, id, processed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return requireJobRow(res, id)
}

func (r *JobRepository) MarkFinished(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_jobs SET status = $2, error = $3, finished_at = $4, updated_at = $4 WHERE id = $1
`, id, string(status), errMsg, now)
	if err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	return requireJobRow(res, id)
}

func requireJobRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "update job", fmt.Errorf("id %s", id))
	}
	return nil
}
