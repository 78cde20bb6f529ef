package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const entryColumns = "id, contract_id, document_url, local_path, filename, status, retry_count, max_retries, processed_data, error_message, created_at, updated_at, started_at, completed_at, failed_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id            int64
		contractID    string
		documentURL   sql.NullString
		localPath     sql.NullString
		filename      sql.NullString
		statusStr     string
		retryCount    int
		maxRetries    int
		processedData sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		completedRaw  sql.NullString
		failedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&contractID,
		&documentURL,
		&localPath,
		&filename,
		&statusStr,
		&retryCount,
		&maxRetries,
		&processedData,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&failedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:            id,
		ContractID:    contractID,
		DocumentURL:   documentURL.String,
		LocalPath:     localPath.String,
		Filename:      filename.String,
		Status:        Status(statusStr),
		RetryCount:    retryCount,
		MaxRetries:    maxRetries,
		ProcessedData: processedData.String,
		ErrorMessage:  errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			entry.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			entry.CompletedAt = &completed
		}
	}
	if failedRaw.Valid {
		if failed, err := parseTimeString(failedRaw.String); err == nil {
			entry.FailedAt = &failed
		}
	}
	return entry, nil
}

const jobColumns = "id, job_type, status, records_processed, errors_count, error_details, started_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		jobType      string
		statusStr    string
		processed    int
		errorsCount  int
		errorDetails sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobType,
		&statusStr,
		&processed,
		&errorsCount,
		&errorDetails,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		JobType:          jobType,
		Status:           JobStatus(statusStr),
		RecordsProcessed: processed,
		ErrorsCount:      errorsCount,
	}
	if errorDetails.Valid && errorDetails.String != "" {
		var details []string
		if err := json.Unmarshal([]byte(errorDetails.String), &details); err == nil {
			job.ErrorDetails = details
		}
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		job.StartedAt = started
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
