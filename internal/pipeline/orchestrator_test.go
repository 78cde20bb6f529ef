package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"docket/internal/config"
	"docket/internal/conversion"
	"docket/internal/extraction"
	"docket/internal/index"
	"docket/internal/pipeline"
	"docket/internal/queue"
	"docket/internal/services"
	"docket/internal/services/completion"
	"docket/internal/testsupport"
)

type stubConverter struct {
	mu       sync.Mutex
	calls    int
	inFlight int
	peak     int
	delay    time.Duration
	failFor  map[string]error
}

func (s *stubConverter) Convert(ctx context.Context, src conversion.Source) (conversion.Result, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	err := s.failFor[src.Filename]
	delay := s.delay
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return conversion.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return conversion.Result{}, err
	}
	return conversion.Result{
		Path:      "/staging/documents/" + src.ContractID + "_" + src.Filename,
		Converted: strings.HasSuffix(src.Filename, ".docx"),
		MediaType: conversion.MediaTypePDF,
	}, nil
}

func (s *stubConverter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubConverter) peakInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

type stubExtractor struct {
	mu       sync.Mutex
	calls    int
	text     string
	method   string
	pages    int
	failFor  map[string]error
	blockFor map[string]bool
}

func (s *stubExtractor) Extract(ctx context.Context, path, mediaType string) (extraction.Result, error) {
	s.mu.Lock()
	s.calls++
	var block bool
	for name, blocked := range s.blockFor {
		if blocked && strings.Contains(path, name) {
			block = true
		}
	}
	var err error
	for name, failure := range s.failFor {
		if strings.Contains(path, name) {
			err = failure
		}
	}
	text, method, pages := s.text, s.method, s.pages
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return extraction.Result{}, ctx.Err()
	}
	if err != nil {
		return extraction.Result{}, err
	}
	if text == "" {
		text = "Contract W911QX-24-D-0002 delivery terms and milestones."
	}
	if method == "" {
		method = extraction.MethodPDFText
	}
	if pages == 0 {
		pages = 2
	}
	return extraction.Result{Text: text, Pages: pages, Method: method}, nil
}

type stubSummarizer struct {
	mu          sync.Mutex
	calls       int
	placeholder bool
	wasRetried  bool
}

func (s *stubSummarizer) Summarize(_ context.Context, req completion.SummaryRequest) completion.SummaryResult {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.placeholder {
		return completion.SummaryResult{
			Content:     "Summary unavailable (external): provider down",
			Placeholder: true,
			Attempts:    3,
			WasRetried:  true,
		}
	}
	attempts := 1
	if s.wasRetried {
		attempts = 2
	}
	return completion.SummaryResult{
		Content:      "Summary of " + req.Filename,
		DocumentType: "solicitation",
		KeyPoints:    []string{"delivery within 90 days"},
		Parties:      []string{"GSA"},
		Attempts:     attempts,
		WasRetried:   s.wasRetried,
	}
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testHarness struct {
	cfg        *config.Config
	store      *queue.Store
	index      *index.Index
	converter  *stubConverter
	extractor  *stubExtractor
	summarizer *stubSummarizer
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *testHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return &testHarness{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		index:      testsupport.MustOpenIndex(t),
		converter:  &stubConverter{},
		extractor:  &stubExtractor{},
		summarizer: &stubSummarizer{},
	}
}

func (h *testHarness) orchestrator(t *testing.T, opts ...pipeline.Option) *pipeline.Orchestrator {
	t.Helper()
	orch := pipeline.New(h.cfg, h.store, pipeline.Stages{
		Converter:  h.converter,
		Extractor:  h.extractor,
		Summarizer: h.summarizer,
		Index:      h.index,
	}, nil, opts...)
	t.Cleanup(orch.Close)
	return orch
}

func (h *testHarness) addEntry(t *testing.T, contractID, filename string) *queue.Entry {
	t.Helper()
	return testsupport.NewEntry(t, h.store, queue.AddRequest{
		ContractID:  contractID,
		DocumentURL: "https://contracts.example.gov/docs/" + filename,
		Filename:    filename,
	})
}

func runToCompletion(t *testing.T, orch *pipeline.Orchestrator, req pipeline.StartRequest) pipeline.JobStatus {
	t.Helper()
	ctx := context.Background()
	resp, err := orch.Start(ctx, req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := orch.WaitForJob(waitCtx, resp.JobID); err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	status, err := orch.Status(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return status
}

func decodeProcessedData(t *testing.T, entry *queue.Entry) map[string]any {
	t.Helper()
	if entry.ProcessedData == "" {
		t.Fatalf("entry %d has no processed data", entry.ID)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(entry.ProcessedData), &data); err != nil {
		t.Fatalf("decode processed data: %v", err)
	}
	return data
}

func TestStartProcessesAllEntries(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"solicitation.pdf", "sow.docx", "pricing.txt"} {
		h.addEntry(t, "W911QX-24-R-0001", name)
	}
	orch := h.orchestrator(t)

	status := runToCompletion(t, orch, pipeline.StartRequest{})

	if status.Status != queue.JobCompleted {
		t.Fatalf("expected completed job, got %s", status.Status)
	}
	if status.Running {
		t.Fatal("job should not report running after completion")
	}
	if status.RecordsProcessed != 3 || status.ErrorsCount != 0 {
		t.Fatalf("unexpected totals: processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	if status.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	entries, err := h.store.List(context.Background(), queue.StatusCompleted)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 completed entries, got %d", len(entries))
	}
	data := decodeProcessedData(t, entries[0])
	if data["summary"] == "" {
		t.Fatal("processed data missing summary")
	}
	if data["title"] == "" {
		t.Fatal("processed data missing title")
	}
	if data["cached"] != false {
		t.Fatalf("fresh entry should not report cached, got %v", data["cached"])
	}
	if h.summarizer.callCount() != 3 {
		t.Fatalf("expected 3 summarizer calls, got %d", h.summarizer.callCount())
	}
}

func TestStartEmptySelectionCompletesImmediately(t *testing.T) {
	h := newHarness(t)
	orch := h.orchestrator(t)

	resp, err := orch.Start(context.Background(), pipeline.StartRequest{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := orch.Status(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != queue.JobCompleted {
		t.Fatalf("empty selection should complete the job immediately, got %s", status.Status)
	}
	if status.RecordsProcessed != 0 || status.ErrorsCount != 0 {
		t.Fatalf("expected zero totals, got processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	if status.Running {
		t.Fatal("empty job should not be running")
	}
}

func TestStartReturnsBeforeRunFinishes(t *testing.T) {
	h := newHarness(t)
	h.converter.delay = 150 * time.Millisecond
	h.addEntry(t, "FA8501-25-Q-0033", "quote.pdf")
	orch := h.orchestrator(t)

	resp, err := orch.Start(context.Background(), pipeline.StartRequest{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := orch.Status(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != queue.JobRunning {
		t.Fatalf("expected job still running right after start, got %s", status.Status)
	}
	if !status.Running {
		t.Fatal("registry should report the job as live")
	}
	if status.RecordsProcessed != 0 {
		t.Fatalf("counters must stay zero until the final commit, got %d", status.RecordsProcessed)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.WaitForJob(waitCtx, resp.JobID); err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
}

func TestBatchIsolation(t *testing.T) {
	h := newHarness(t)
	h.converter.failFor = map[string]error{
		"corrupt.pdf": services.Wrap(services.ErrValidation, "conversion", "materialize", "unsupported document format", nil),
	}
	for _, name := range []string{"base.pdf", "corrupt.pdf", "clauses.pdf", "wage_determination.pdf"} {
		h.addEntry(t, "W911QX-24-R-0001", name)
	}
	orch := h.orchestrator(t)

	status := runToCompletion(t, orch, pipeline.StartRequest{Concurrency: 4})

	if status.RecordsProcessed != 3 {
		t.Fatalf("expected 3 processed, got %d", status.RecordsProcessed)
	}
	if status.ErrorsCount != 1 {
		t.Fatalf("expected exactly 1 error, got %d", status.ErrorsCount)
	}
	if len(status.ErrorDetails) != 1 || !strings.Contains(status.ErrorDetails[0], "corrupt.pdf") {
		t.Fatalf("unexpected error details: %v", status.ErrorDetails)
	}

	failed, err := h.store.List(context.Background(), queue.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Filename != "corrupt.pdf" {
		t.Fatalf("expected corrupt.pdf terminal, got %v", failed)
	}
	completed, err := h.store.List(context.Background(), queue.StatusCompleted)
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(completed) != 3 {
		t.Fatalf("expected 3 completed siblings, got %d", len(completed))
	}
}

func TestRetryableFailureRequeuesEntry(t *testing.T) {
	h := newHarness(t)
	h.converter.failFor = map[string]error{
		"flaky.pdf": services.Wrap(services.ErrTransient, "conversion", "download", "bad gateway", nil),
	}
	h.addEntry(t, "N00014-25-C-2201", "flaky.pdf")
	orch := h.orchestrator(t)

	status := runToCompletion(t, orch, pipeline.StartRequest{})

	if status.ErrorsCount != 1 || status.RecordsProcessed != 0 {
		t.Fatalf("unexpected totals: processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	queued, err := h.store.List(context.Background(), queue.StatusQueued)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("transient failure should requeue the entry, got %d queued", len(queued))
	}
	if queued[0].RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", queued[0].RetryCount)
	}
	if !strings.Contains(queued[0].ErrorMessage, "bad gateway") {
		t.Fatalf("expected error message preserved, got %q", queued[0].ErrorMessage)
	}
}

func TestBatchesBoundConcurrency(t *testing.T) {
	h := newHarness(t)
	h.converter.delay = 25 * time.Millisecond
	for i := 0; i < 6; i++ {
		h.addEntry(t, "W911QX-24-R-0001", fmt.Sprintf("attachment_%d.pdf", i+1))
	}
	orch := h.orchestrator(t)

	status := runToCompletion(t, orch, pipeline.StartRequest{Concurrency: 2})

	if status.RecordsProcessed != 6 {
		t.Fatalf("expected all 6 processed, got %d", status.RecordsProcessed)
	}
	if h.converter.callCount() != 6 {
		t.Fatalf("expected 6 conversions, got %d", h.converter.callCount())
	}
	if peak := h.converter.peakInFlight(); peak > 2 {
		t.Fatalf("concurrency bound violated: peak %d", peak)
	}
}

func TestEntryTimeoutFailsOnlyThatEntry(t *testing.T) {
	h := newHarness(t)
	h.extractor.blockFor = map[string]bool{"huge_scan.pdf": true}
	h.addEntry(t, "W911QX-24-R-0001", "huge_scan.pdf")
	h.addEntry(t, "W911QX-24-R-0001", "cover_letter.pdf")
	orch := h.orchestrator(t, pipeline.WithEntryTimeout(80*time.Millisecond))

	status := runToCompletion(t, orch, pipeline.StartRequest{Concurrency: 2})

	if status.RecordsProcessed != 1 || status.ErrorsCount != 1 {
		t.Fatalf("unexpected totals: processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	if len(status.ErrorDetails) != 1 || !strings.Contains(status.ErrorDetails[0], "huge_scan.pdf") {
		t.Fatalf("unexpected error details: %v", status.ErrorDetails)
	}

	queued, err := h.store.List(context.Background(), queue.StatusQueued)
	if err != nil {
		t.Fatalf("List queued: %v", err)
	}
	if len(queued) != 1 || queued[0].Filename != "huge_scan.pdf" {
		t.Fatalf("expected huge_scan.pdf requeued, got %v", queued)
	}
	if !strings.Contains(queued[0].ErrorMessage, "exceeded") {
		t.Fatalf("expected timeout message, got %q", queued[0].ErrorMessage)
	}
	if queued[0].RetryCount != 1 {
		t.Fatalf("timeout should charge one retry, got %d", queued[0].RetryCount)
	}

	completed, err := h.store.List(context.Background(), queue.StatusCompleted)
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(completed) != 1 || completed[0].Filename != "cover_letter.pdf" {
		t.Fatalf("sibling should complete unaffected, got %v", completed)
	}
}

func TestTestModeCapsSelectionAndResetsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := h.addEntry(t, "W911QX-24-R-0001", "stale.pdf")
	if _, err := h.store.Claim(ctx, stale.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	done := h.addEntry(t, "W911QX-24-R-0001", "old_done.pdf")
	if _, err := h.store.Claim(ctx, done.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.store.MarkCompleted(ctx, done.ID, `{"summary":"old"}`); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	broken := h.addEntry(t, "W911QX-24-R-0001", "old_broken.pdf")
	if _, err := h.store.Claim(ctx, broken.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.store.MarkFailed(ctx, broken.ID, "boom", false); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	for i := 0; i < 6; i++ {
		h.addEntry(t, "W911QX-24-R-0001", fmt.Sprintf("doc_%d.pdf", i+1))
	}

	orch := h.orchestrator(t)
	status := runToCompletion(t, orch, pipeline.StartRequest{TestMode: true})

	if got := status.RecordsProcessed + status.ErrorsCount; got != 5 {
		t.Fatalf("test mode should settle exactly 5 entries, got %d", got)
	}
	if status.Status != queue.JobCompleted {
		t.Fatalf("expected completed job, got %s", status.Status)
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusProcessing] != 0 {
		t.Fatalf("no entry may remain processing, got %d", stats[queue.StatusProcessing])
	}
	// 7 queued entries existed after the reset (stale.pdf + 6 new); 5 were
	// worked, 2 remain.
	if stats[queue.StatusQueued] != 2 {
		t.Fatalf("expected 2 entries left queued, got %d", stats[queue.StatusQueued])
	}
	if stats[queue.StatusCompleted] != 5 {
		t.Fatalf("expected 5 completed entries, got %d", stats[queue.StatusCompleted])
	}
	if stats[queue.StatusFailed] != 0 {
		t.Fatalf("prior failed entries should have been cleared, got %d", stats[queue.StatusFailed])
	}
}

func TestCacheHitSkipsSummarizer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var completionCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": `{"summary":"should not be called"}`}},
			},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer server.Close()
	client := completion.NewClient(
		completion.Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		completion.WithCallCounter(func() { completionCalls++ }),
	)

	entry := h.addEntry(t, "W911QX-24-R-0001", "solicitation.pdf")
	key := index.Key(entry.ContractID, entry.Filename)
	if err := h.index.Put(key, index.Record{
		Summary:  "Previously indexed solicitation summary.",
		Metadata: map[string]string{"document_type": "solicitation"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	orch := pipeline.New(h.cfg, h.store, pipeline.Stages{
		Converter:  h.converter,
		Extractor:  h.extractor,
		Summarizer: client,
		Index:      h.index,
	}, nil)
	t.Cleanup(orch.Close)

	status := runToCompletion(t, orch, pipeline.StartRequest{})

	if status.RecordsProcessed != 1 || status.ErrorsCount != 0 {
		t.Fatalf("unexpected totals: processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	if completionCalls != 0 {
		t.Fatalf("cache hit must not call the completion service, got %d calls", completionCalls)
	}

	updated, err := h.store.ByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	data := decodeProcessedData(t, updated)
	if data["cached"] != true {
		t.Fatalf("expected cached:true, got %v", data["cached"])
	}
	if data["summary"] != "Previously indexed solicitation summary." {
		t.Fatalf("expected indexed summary reused, got %q", data["summary"])
	}
	if data["document_type"] != "solicitation" {
		t.Fatalf("expected document type from index metadata, got %v", data["document_type"])
	}
}

func TestGatewayTimeoutRetriedThenSucceeds(t *testing.T) {
	h := newHarness(t)

	var requests int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		attempt := requests
		mu.Unlock()
		if attempt <= 2 {
			http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
			return
		}
		response := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": `{"summary":"Delivery schedule amendment.","document_type":"amendment"}`}},
			},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer server.Close()
	client := completion.NewClient(
		completion.Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		completion.WithRetryMaxAttempts(3),
		completion.WithSleeper(func(time.Duration) {}),
	)

	entry := h.addEntry(t, "SP0600-25-D-0450", "amendment_03.pdf")
	orch := pipeline.New(h.cfg, h.store, pipeline.Stages{
		Converter:  h.converter,
		Extractor:  h.extractor,
		Summarizer: client,
		Index:      h.index,
	}, nil)
	t.Cleanup(orch.Close)

	status := runToCompletion(t, orch, pipeline.StartRequest{})

	if status.RecordsProcessed != 1 || status.ErrorsCount != 0 {
		t.Fatalf("unexpected totals: processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	updated, err := h.store.ByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	data := decodeProcessedData(t, updated)
	if data["was_retried"] != true {
		t.Fatalf("expected was_retried:true, got %v", data["was_retried"])
	}
	if data["attempts"] != float64(3) {
		t.Fatalf("expected 3 attempts recorded, got %v", data["attempts"])
	}
	if data["summary"] != "Delivery schedule amendment." {
		t.Fatalf("unexpected summary %q", data["summary"])
	}
	if data["placeholder"] != nil {
		t.Fatalf("successful summary should not be a placeholder, got %v", data["placeholder"])
	}
}

func TestPlaceholderSummaryCompletesButStaysUnindexed(t *testing.T) {
	h := newHarness(t)
	h.summarizer.placeholder = true
	entry := h.addEntry(t, "W911QX-24-R-0001", "unreadable.pdf")
	orch := h.orchestrator(t)

	status := runToCompletion(t, orch, pipeline.StartRequest{})

	if status.RecordsProcessed != 1 || status.ErrorsCount != 0 {
		t.Fatalf("placeholder summary still counts as processed, got processed=%d errors=%d", status.RecordsProcessed, status.ErrorsCount)
	}
	updated, err := h.store.ByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	data := decodeProcessedData(t, updated)
	if data["placeholder"] != true {
		t.Fatalf("expected placeholder:true, got %v", data["placeholder"])
	}
	count, err := h.index.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("placeholder summaries must stay out of the index, got %d records", count)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	h := newHarness(t)
	orch := h.orchestrator(t)

	_, err := orch.Status(context.Background(), "no-such-job")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestCloseRejectsNewJobs(t *testing.T) {
	h := newHarness(t)
	orch := h.orchestrator(t)
	orch.Close()

	if _, err := orch.Start(context.Background(), pipeline.StartRequest{}); err == nil {
		t.Fatal("expected Start to fail after Close")
	}
}
