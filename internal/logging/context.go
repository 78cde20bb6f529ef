package logging

import (
	"context"
	"log/slog"

	"docket/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEntryID is the standardized structured logging key for queue entry identifiers.
	FieldEntryID = "entry_id"
	// FieldContractID is the standardized structured logging key for contract identifiers.
	FieldContractID = "contract_id"
	// FieldJobID is the standardized structured logging key for processing job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType labels lifecycle events (stage_started, stage_completed, entry_failed).
	FieldEventType = "event_type"
	// FieldDecisionType labels automated decisions (cache reuse, OCR fallback) for review.
	FieldDecisionType = "decision_type"
	// FieldErrorCode carries a stable machine-readable error identifier.
	FieldErrorCode = "error_code"
	// FieldErrorHint carries a short operator-facing remediation hint.
	FieldErrorHint = "error_hint"
	// FieldErrorDetailPath points at a file with full diagnostic output when the
	// message itself is truncated.
	FieldErrorDetailPath = "error_detail_path"
	// FieldImpact describes the user-visible consequence of a warning.
	FieldImpact = "impact"
	// FieldProgressStage names the stage a progress update belongs to.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent carries 0-100 completion for a progress update.
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage carries the human-readable progress summary.
	FieldProgressMessage = "progress_message"
	// FieldProgressETA carries the estimated time remaining for a progress update.
	FieldProgressETA = "progress_eta"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.EntryIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldEntryID, id))
	}
	if contract, ok := services.ContractIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldContractID, contract))
	}
	if job, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, job))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
