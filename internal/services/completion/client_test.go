package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func summaryChoices(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}

func TestSummarizeParsesStructuredPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		payload := summaryChoices(`{"summary":"Fixed-price supply contract for office furniture.","document_type":"solicitation","key_points":["delivery within 90 days"],"parties":["GSA"]}`)
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result := client.Summarize(context.Background(), SummaryRequest{
		ContractID: "C-2024-17",
		Filename:   "furniture_rfq.pdf",
		Text:       "Request for quotation covering office furniture.",
	})

	if result.Placeholder {
		t.Fatalf("expected real summary, got placeholder %q", result.Content)
	}
	if result.Content != "Fixed-price supply contract for office furniture." {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if result.DocumentType != "solicitation" {
		t.Fatalf("unexpected document type %q", result.DocumentType)
	}
	if len(result.KeyPoints) != 1 || result.KeyPoints[0] != "delivery within 90 days" {
		t.Fatalf("unexpected key points %v", result.KeyPoints)
	}
	if len(result.Parties) != 1 || result.Parties[0] != "GSA" {
		t.Fatalf("unexpected parties %v", result.Parties)
	}
	if result.Attempts != 1 || result.WasRetried {
		t.Fatalf("expected single attempt, got attempts=%d retried=%v", result.Attempts, result.WasRetried)
	}

	if gotPath != "/chat/completions" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotAuth != "Bearer test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["model"] != "demo-model" {
		t.Fatalf("unexpected model %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(summaryMaxTokens) {
		t.Fatalf("unexpected max_tokens %v", gotBody["max_tokens"])
	}
}

func TestSummarizeCodeFencePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := summaryChoices("```json\n{\"summary\":\"Amendment extending the delivery schedule.\"}\n```")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if result.Placeholder {
		t.Fatalf("expected real summary, got placeholder %q", result.Content)
	}
	if result.Content != "Amendment extending the delivery schedule." {
		t.Fatalf("unexpected content %q", result.Content)
	}
}

func TestSummarizeSchemaInvalidDegradesToPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := summaryChoices("The document is a two page pricing sheet for janitorial services.")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if result.Placeholder {
		t.Fatalf("expected degraded plain-text summary, got placeholder %q", result.Content)
	}
	if !strings.Contains(result.Content, "pricing sheet") {
		t.Fatalf("expected raw content to survive, got %q", result.Content)
	}
	if result.DocumentType != "" || result.KeyPoints != nil {
		t.Fatalf("expected no structured fields, got %+v", result)
	}
}

func TestSummarizeRetriesGatewayTimeoutThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusGatewayTimeout)
			_, _ = w.Write([]byte("upstream timed out"))
			return
		}
		_ = json.NewEncoder(w).Encode(summaryChoices(`{"summary":"Third attempt succeeded."}`))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if result.Placeholder {
		t.Fatalf("expected success after retries, got placeholder %q", result.Content)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if result.Attempts != 3 || !result.WasRetried {
		t.Fatalf("expected attempts=3 retried=true, got attempts=%d retried=%v", result.Attempts, result.WasRetried)
	}
}

func TestSummarizeHonorsLargerRetryAfter(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "4")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(summaryChoices(`{"summary":"Recovered."}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(time.Second, 30*time.Second),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if result.Placeholder {
		t.Fatalf("expected success, got placeholder %q", result.Content)
	}
	if len(slept) != 1 || slept[0] != 4*time.Second {
		t.Fatalf("expected single 4s sleep from Retry-After, got %v", slept)
	}
}

func TestSummarizeNonRetryableFailsFast(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid model"})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if !result.Placeholder {
		t.Fatalf("expected placeholder, got %q", result.Content)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", slept)
	}
	if result.Attempts != 1 || result.WasRetried {
		t.Fatalf("expected attempts=1 retried=false, got attempts=%d retried=%v", result.Attempts, result.WasRetried)
	}
	if !strings.Contains(result.Content, "Summary unavailable") {
		t.Fatalf("placeholder content missing diagnostic: %q", result.Content)
	}
}

func TestSummarizeUnreachableEndpointFailsFast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	var calls int
	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: endpoint, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithCallCounter(func() { calls++ }),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if !result.Placeholder {
		t.Fatalf("expected placeholder, got %q", result.Content)
	}
	if calls != 1 {
		t.Fatalf("connection refused is not retryable, expected 1 call, got %d", calls)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", slept)
	}
	if result.Attempts != 1 || result.WasRetried {
		t.Fatalf("expected attempts=1 retried=false, got attempts=%d retried=%v", result.Attempts, result.WasRetried)
	}
}

func TestSummarizeExhaustionAnnotatesAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(3),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if !result.Placeholder {
		t.Fatalf("expected placeholder, got %q", result.Content)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !strings.Contains(result.Content, "after 3 attempts") {
		t.Fatalf("placeholder should carry attempt count, got %q", result.Content)
	}
	if !result.WasRetried {
		t.Fatal("expected WasRetried on exhausted retries")
	}
}

func TestSummarizeBackoffMonotonicAndCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(2*time.Second, 5*time.Second),
		WithRetryMaxAttempts(4),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if !result.Placeholder {
		t.Fatalf("expected placeholder, got %q", result.Content)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i, d := range slept {
		if d != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, d, want[i])
		}
		if i > 0 && d < slept[i-1] {
			t.Fatalf("backoff decreased: %v", slept)
		}
	}
}

func TestSummarizeEmptyContentIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"content": ""},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(time.Duration) {}),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if !result.Placeholder {
		t.Fatalf("expected placeholder, got %q", result.Content)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if !strings.Contains(result.Content, "empty content") {
		t.Fatalf("placeholder should describe the empty response, got %q", result.Content)
	}
}

func TestSummarizeMissingAPIKeySkipsService(t *testing.T) {
	var calls int
	client := NewClient(
		Config{BaseURL: "http://127.0.0.1:0", Model: "demo-model"},
		WithCallCounter(func() { calls++ }),
	)
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if !result.Placeholder {
		t.Fatalf("expected placeholder, got %q", result.Content)
	}
	if calls != 0 {
		t.Fatalf("expected zero service calls, got %d", calls)
	}
	if !strings.Contains(result.Content, "api key") {
		t.Fatalf("placeholder should name the missing key, got %q", result.Content)
	}
}

func TestSummarizeCallCounterCountsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(summaryChoices(`{"summary":"Done."}`))
	}))
	defer server.Close()

	var calls int
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithCallCounter(func() { calls++ }),
	)
	_ = client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if calls != 1 {
		t.Fatalf("expected counter at 1, got %d", calls)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(summaryChoices(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(summaryChoices("```json\n{\"ok\":true}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestHealthCheckFailureIsSingleAttempt(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
	if calls != 1 {
		t.Fatalf("expected single probe, got %d calls", calls)
	}
}

func TestSummarizeToolCallArgumentsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type": "function",
								"id":   "call_1",
								"function": map[string]any{
									"name":      "summarize_document",
									"arguments": `{"summary":"Delivered via tool call."}`,
								},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	result := client.Summarize(context.Background(), SummaryRequest{ContractID: "C-1", Filename: "a.pdf", Text: "text"})
	if result.Placeholder {
		t.Fatalf("expected summary from tool call arguments, got placeholder %q", result.Content)
	}
	if result.Content != "Delivered via tool call." {
		t.Fatalf("unexpected content %q", result.Content)
	}
}

func TestDecodeSummaryPayloadRejectsWrongTypes(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing summary", `{"document_type":"amendment"}`},
		{"summary wrong type", `{"summary":42}`},
		{"key points wrong type", `{"summary":"ok","key_points":"not an array"}`},
		{"blank summary", `{"summary":"   "}`},
		{"not json", "plain prose"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeSummaryPayload(tc.content); err == nil {
				t.Fatalf("expected decode failure for %q", tc.content)
			}
		})
	}
}
