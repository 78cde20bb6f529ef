package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"docket/internal/conversion"
	"docket/internal/extraction"
	"docket/internal/index"
	"docket/internal/logging"
	"docket/internal/queue"
	"docket/internal/services"
	"docket/internal/services/completion"
	"docket/internal/textutil"
)

// processedData is the JSON blob persisted on a completed entry. It carries
// enough to rebuild the result of a run without replaying the pipeline.
type processedData struct {
	Title           string   `json:"title,omitempty"`
	Summary         string   `json:"summary"`
	DocumentType    string   `json:"document_type,omitempty"`
	KeyPoints       []string `json:"key_points,omitempty"`
	Parties         []string `json:"parties,omitempty"`
	Cached          bool     `json:"cached"`
	Placeholder     bool     `json:"placeholder,omitempty"`
	WasRetried      bool     `json:"was_retried,omitempty"`
	Attempts        int      `json:"attempts,omitempty"`
	Converted       bool     `json:"converted"`
	Recognized      bool     `json:"recognized,omitempty"`
	MediaType       string   `json:"media_type,omitempty"`
	Method          string   `json:"method,omitempty"`
	Pages           int      `json:"pages,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// processEntry claims one entry and carries it through the full pipeline
// under the per-entry wall-clock budget. Store bookkeeping runs on the job
// context so a timed-out entry still gets its failure persisted.
func (o *Orchestrator) processEntry(ctx context.Context, entry *queue.Entry) outcome {
	out := outcome{entryID: entry.ID, filename: entry.Filename}
	entryCtx := services.WithEntryID(ctx, entry.ID)
	entryCtx = services.WithContractID(entryCtx, entry.ContractID)
	logger := logging.WithContext(entryCtx, o.logger)

	claimed, err := o.store.Claim(ctx, entry.ID)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown beat the claim. The entry is still queued and is not
			// charged against the job's error count.
			out.skipped = true
			logger.Debug("shutdown before entry could be claimed")
			return out
		}
		out.err = fmt.Errorf("claim entry: %w", err)
		logger.Error("failed to claim entry", logging.Error(err))
		return out
	}
	if claimed == nil {
		out.skipped = true
		logger.Debug("entry no longer queued, skipping")
		return out
	}

	start := time.Now()
	workCtx, cancel := context.WithTimeout(entryCtx, o.entryTimeout)
	defer cancel()

	data, err := o.runStages(workCtx, logger, claimed)
	if err != nil {
		timedOut := errors.Is(workCtx.Err(), context.DeadlineExceeded)
		if ctx.Err() != nil && !timedOut {
			// Shutdown interrupted the entry. Leave it in processing;
			// startup reclaim returns it to queued without charging the
			// retry budget.
			out.skipped = true
			logger.Debug("entry interrupted by shutdown")
			return out
		}
		if timedOut {
			err = services.Wrap(services.ErrTimeout, "pipeline", "entry",
				fmt.Sprintf("processing exceeded the %s budget", o.entryTimeout), err)
		}
		o.failEntry(ctx, logger, claimed, err)
		out.err = err
		return out
	}

	data.DurationSeconds = time.Since(start).Seconds()
	payload, err := json.Marshal(data)
	if err != nil {
		err = fmt.Errorf("encode processed data: %w", err)
		o.failEntry(ctx, logger, claimed, err)
		out.err = err
		return out
	}
	if _, err := o.store.MarkCompleted(ctx, claimed.ID, string(payload)); err != nil {
		out.err = fmt.Errorf("mark entry completed: %w", err)
		logger.Error("failed to persist entry completion", logging.Error(err))
		return out
	}

	out.cached = data.Cached
	logger.Info("entry processed",
		logging.String(logging.FieldEventType, "entry_complete"),
		logging.Bool("cached", data.Cached),
		logging.Bool("placeholder", data.Placeholder),
		logging.String("method", data.Method),
		logging.Int("pages", data.Pages),
		logging.Duration("entry_duration", time.Since(start)),
	)
	return out
}

// runStages executes convert, extract, index lookup, summarize, and index
// update for one claimed entry. A lookup hit settles the entry from the
// stored record without touching the summarizer.
func (o *Orchestrator) runStages(ctx context.Context, logger *slog.Logger, entry *queue.Entry) (processedData, error) {
	var data processedData
	data.Title = textutil.DeriveTitle(entry.Filename)

	converted, err := o.stages.Converter.Convert(ctx, conversion.Source{
		ContractID: entry.ContractID,
		URL:        entry.DocumentURL,
		LocalPath:  entry.LocalPath,
		Filename:   entry.Filename,
	})
	if err != nil {
		return data, err
	}
	data.Converted = converted.Converted
	data.MediaType = converted.MediaType

	extracted, err := o.stages.Extractor.Extract(ctx, converted.Path, converted.MediaType)
	if err != nil {
		return data, err
	}
	data.Method = extracted.Method
	data.Pages = extracted.Pages
	data.Recognized = extracted.Method == extraction.MethodPDFOCR

	key := index.Key(entry.ContractID, entry.Filename)
	record, found, err := o.stages.Index.Lookup(key)
	if err != nil {
		return data, err
	}
	if found {
		data.Cached = true
		data.Summary = record.Summary
		if documentType := record.Metadata["document_type"]; documentType != "" {
			data.DocumentType = documentType
		}
		logger.Info("reusing indexed summary",
			logging.Args(logging.DecisionAttrs("cache_reuse", "hit", "document already indexed")...)...,
		)
		return data, nil
	}

	summary := o.stages.Summarizer.Summarize(ctx, completion.SummaryRequest{
		ContractID: entry.ContractID,
		Filename:   entry.Filename,
		Text:       extracted.Text,
	})
	data.Summary = summary.Content
	data.DocumentType = summary.DocumentType
	data.KeyPoints = summary.KeyPoints
	data.Parties = summary.Parties
	data.Placeholder = summary.Placeholder
	data.Attempts = summary.Attempts
	data.WasRetried = summary.WasRetried

	// Placeholder summaries stay out of the index so a later run can try the
	// summarizer again instead of serving the diagnostic text forever.
	if !summary.Placeholder {
		if err := o.stages.Index.Put(key, index.Record{
			Summary: summary.Content,
			Metadata: map[string]string{
				"contract_id":   entry.ContractID,
				"filename":      entry.Filename,
				"title":         data.Title,
				"document_type": summary.DocumentType,
				"method":        extracted.Method,
				"pages":         strconv.Itoa(extracted.Pages),
			},
		}); err != nil {
			return data, fmt.Errorf("index processed document: %w", err)
		}
	}
	return data, nil
}

// failEntry persists the failure and logs it with its classification. The
// store decides between requeue and terminal failure from the retryable flag
// and the entry's remaining budget.
func (o *Orchestrator) failEntry(ctx context.Context, logger *slog.Logger, entry *queue.Entry, stageErr error) {
	retryable := queue.Retryable(stageErr)
	updated, err := o.store.MarkFailed(ctx, entry.ID, stageErr.Error(), retryable)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutdown before entry failure could be persisted")
		} else {
			logger.Error("failed to persist entry failure", logging.Error(err))
		}
		return
	}

	logger.Error("entry failed",
		logging.String(logging.FieldEventType, "entry_failed"),
		logging.Alert("entry_failure"),
		logging.String("error_kind", string(services.Classify(stageErr))),
		logging.Bool("retryable", retryable),
		logging.String("resolved_status", string(updated.Status)),
		logging.Int("retry_count", updated.RetryCount),
		logging.Error(stageErr),
	)
}
