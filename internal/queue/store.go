package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// fallbackMaxRetries bounds requeue attempts when the caller does not supply
// a budget.
const fallbackMaxRetries = 3

// AddRequest describes a document to enqueue. Exactly one of DocumentURL or
// LocalPath must be set; Filename is inferred from the source when empty.
type AddRequest struct {
	ContractID  string
	DocumentURL string
	LocalPath   string
	Filename    string
	MaxRetries  int
}

// Add enqueues a document for processing. Adding the same source for the same
// contract twice returns the existing entry instead of creating a duplicate.
func (s *Store) Add(ctx context.Context, req AddRequest) (*Entry, error) {
	contractID := strings.TrimSpace(req.ContractID)
	if contractID == "" {
		return nil, errors.New("contract id is required")
	}
	documentURL := strings.TrimSpace(req.DocumentURL)
	localPath := strings.TrimSpace(req.LocalPath)
	if documentURL == "" && localPath == "" {
		return nil, errors.New("document url or local path is required")
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = inferFilenameFromSource(localPath, documentURL)
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = fallbackMaxRetries
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO entries (
            contract_id, document_url, local_path, filename, status,
            retry_count, max_retries, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contractID,
		documentURL,
		localPath,
		filename,
		StatusQueued,
		0,
		maxRetries,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	entry, err := s.BySource(ctx, contractID, documentURL, localPath)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("entry for contract %s vanished after insert", contractID)
	}
	return entry, nil
}

// ByID fetches a queue entry by identifier.
func (s *Store) ByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// BySource returns the entry matching a contract and document source.
func (s *Store) BySource(ctx context.Context, contractID, documentURL, localPath string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM entries WHERE contract_id = ? AND document_url = ? AND local_path = ? ORDER BY id LIMIT 1`,
		strings.TrimSpace(contractID),
		strings.TrimSpace(documentURL),
		strings.TrimSpace(localPath),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return entry, nil
}

// SelectQueued returns queued entries in arrival order, optionally filtered by
// contract and capped at limit.
func (s *Store) SelectQueued(ctx context.Context, contractID string, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE status = ?`
	args := []any{StatusQueued}
	if contract := strings.TrimSpace(contractID); contract != "" {
		query += ` AND contract_id = ?`
		args = append(args, contract)
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select queued: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Claim transitions a queued entry to processing and stamps its start time.
// It returns nil when the entry is no longer queued, so concurrent workers
// cannot claim the same entry twice.
func (s *Store) Claim(ctx context.Context, id int64) (*Entry, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE entries
         SET status = ?, started_at = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		timestamp,
		timestamp,
		id,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("claim entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.ByID(ctx, id)
}

// MarkCompleted records a successful run along with the processing summary.
func (s *Store) MarkCompleted(ctx context.Context, id int64, processedData string) (*Entry, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE entries
         SET status = ?, processed_data = ?, error_message = NULL, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusCompleted,
		nullableString(processedData),
		timestamp,
		timestamp,
		id,
	); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	return s.ByID(ctx, id)
}

// MarkFailed records a failed attempt. Retryable failures with budget left go
// back to queued with the retry counter bumped; everything else lands in the
// terminal failed state.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string, retryable bool) (*Entry, error) {
	entry, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("entry %d not found", id)
	}

	retries := entry.RetryCount + 1
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if retryable && retries < entry.MaxRetries {
		if _, err := s.execWithRetry(
			ctx,
			`UPDATE entries
             SET status = ?, retry_count = ?, error_message = ?, started_at = NULL, updated_at = ?
             WHERE id = ?`,
			StatusQueued,
			retries,
			nullableString(message),
			timestamp,
			id,
		); err != nil {
			return nil, fmt.Errorf("requeue entry: %w", err)
		}
		return s.ByID(ctx, id)
	}

	if _, err := s.execWithRetry(
		ctx,
		`UPDATE entries
         SET status = ?, retry_count = ?, error_message = ?, failed_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusFailed,
		retries,
		nullableString(message),
		timestamp,
		timestamp,
		id,
	); err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	return s.ByID(ctx, id)
}

// List returns queue entries filtered by status set (or all entries when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM entries`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func inferFilenameFromSource(localPath, documentURL string) string {
	if localPath != "" {
		if base := strings.TrimSpace(filepath.Base(localPath)); base != "" && base != "." {
			return base
		}
	}
	if documentURL != "" {
		if parsed, err := url.Parse(documentURL); err == nil {
			if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
				return base
			}
		}
	}
	return "document"
}
