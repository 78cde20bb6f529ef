package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateJob records the start of a batch run. The job stays in the running
// state, with zero counters, until CompleteJob commits the totals.
func (s *Store) CreateJob(ctx context.Context, id, jobType string) (*Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("job id is required")
	}
	if strings.TrimSpace(jobType) == "" {
		jobType = JobTypeDocumentProcessing
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, job_type, status, records_processed, errors_count, started_at)
         VALUES (?, ?, ?, 0, 0, ?)`,
		id,
		jobType,
		JobRunning,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.JobByID(ctx, id)
}

// CompleteJob commits the final counters for a batch run in one write. Partial
// progress is never persisted; a job is either running with zeroes or
// completed with totals.
func (s *Store) CompleteJob(ctx context.Context, id string, processed, errorsCount int, details []string) (*Job, error) {
	var detailsJSON any
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal error details: %w", err)
		}
		detailsJSON = string(encoded)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, records_processed = ?, errors_count = ?, error_details = ?, completed_at = ?
         WHERE id = ? AND status = ?`,
		JobCompleted,
		processed,
		errorsCount,
		detailsJSON,
		timestamp,
		id,
		JobRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("job %s is not running", id)
	}
	return s.JobByID(ctx, id)
}

// JobByID fetches a job record by identifier.
func (s *Store) JobByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns job records newest first, capped at limit when positive.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
