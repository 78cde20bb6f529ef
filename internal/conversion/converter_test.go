package conversion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docket/internal/respool"
	"docket/internal/services"
)

// sofficeStub fakes the soffice binary. Successful runs write the expected
// <stem>.pdf into the outdir parsed from the arguments.
type sofficeStub struct {
	t *testing.T

	mu        sync.Mutex
	calls     int
	failUntil int
	stderr    string
	skipWrite bool

	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (s *sofficeStub) Runner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if name != SofficeCommand {
		s.t.Errorf("unexpected command %q", name)
		return nil, nil, fmt.Errorf("unexpected command %q", name)
	}
	want := []string{"--headless", "--convert-to", "pdf", "--outdir"}
	if len(args) != 6 {
		s.t.Errorf("soffice args = %v, want 6 values", args)
		return nil, nil, errors.New("bad args")
	}
	for i, arg := range want {
		if args[i] != arg {
			s.t.Errorf("soffice args[%d] = %q, want %q", i, args[i], arg)
		}
	}

	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if call <= s.failUntil {
		return nil, []byte(s.stderr), errors.New("exit status 77")
	}
	if s.skipWrite {
		return nil, []byte(s.stderr), nil
	}

	outDir, input := args[4], args[5]
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	output := filepath.Join(outDir, stem+".pdf")
	if err := os.WriteFile(output, []byte("%PDF-1.4 converted"), 0o644); err != nil {
		s.t.Errorf("write converted output: %v", err)
		return nil, nil, err
	}
	return []byte("convert " + input + " -> " + output), nil, nil
}

func (s *sofficeStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestConverter(t *testing.T, stub *sofficeStub, mutate func(*Config)) (*Converter, string, *[]time.Duration) {
	t.Helper()
	staging := t.TempDir()
	cfg := Config{StagingDir: staging}
	if mutate != nil {
		mutate(&cfg)
	}
	pool, err := respool.New(1)
	if err != nil {
		t.Fatal(err)
	}
	var delays []time.Duration
	conv := NewConverter(cfg, pool, nil,
		WithCommandRunner(stub.Runner),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)
	return conv, staging, &delays
}

func writeSourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertLocalPDFPassesThrough(t *testing.T) {
	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "award.pdf", "%PDF-1.4 original")

	res, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "award.pdf"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if res.Path != src {
		t.Fatalf("Path = %q, want original %q", res.Path, src)
	}
	if res.Converted {
		t.Fatal("Converted = true for a native PDF")
	}
	if res.MediaType != MediaTypePDF {
		t.Fatalf("MediaType = %q, want %q", res.MediaType, MediaTypePDF)
	}
	if got := stub.callCount(); got != 0 {
		t.Fatalf("soffice invoked %d times for a native PDF", got)
	}
}

func TestConvertLocalTextPassesThrough(t *testing.T) {
	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "notes.txt", "plain text")

	res, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "notes.txt"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if res.MediaType != MediaTypeText {
		t.Fatalf("MediaType = %q, want %q", res.MediaType, MediaTypeText)
	}
	if res.Converted {
		t.Fatal("Converted = true for plain text")
	}
}

func TestSupportedExtension(t *testing.T) {
	for _, ext := range []string{".pdf", ".txt", ".docx", "PDF", "docx", " .Rtf "} {
		if !SupportedExtension(ext) {
			t.Errorf("SupportedExtension(%q) = false, want true", ext)
		}
	}
	for _, ext := range []string{"", ".exe", "zip", ".tar.gz"} {
		if SupportedExtension(ext) {
			t.Errorf("SupportedExtension(%q) = true, want false", ext)
		}
	}
}

func TestConvertRejectsUnsupportedExtension(t *testing.T) {
	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, nil)

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", URL: "https://example.com/tool.exe", Filename: "tool.exe"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := stub.callCount(); got != 0 {
		t.Fatalf("soffice invoked %d times for an unsupported type", got)
	}
}

func TestConvertLocalMissingFile(t *testing.T) {
	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, nil)

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: "/nonexistent/award.pdf", Filename: "award.pdf"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestConvertDownloadsRemotePDF(t *testing.T) {
	const body = "%PDF-1.4 remote document"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	stub := &sofficeStub{t: t}
	conv, staging, _ := newTestConverter(t, stub, nil)

	res, err := conv.Convert(context.Background(), Source{
		ContractID: "W911QX",
		URL:        server.URL + "/files/solicitation.pdf?X-Amz-Signature=abc123",
		Filename:   "solicitation.pdf",
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	want := filepath.Join(staging, "documents", "w911qx_solicitation.pdf")
	if res.Path != want {
		t.Fatalf("Path = %q, want %q", res.Path, want)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read staged document: %v", err)
	}
	if string(data) != body {
		t.Fatalf("staged content = %q, want %q", data, body)
	}

	workRoot := filepath.Join(staging, "convert")
	entries, err := os.ReadDir(workRoot)
	if err == nil && len(entries) > 0 {
		t.Fatalf("work dirs left behind: %v", entries)
	}
}

func TestConvertInfersExtensionFromContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf; charset=binary")
		fmt.Fprint(w, "%PDF-1.4 extensionless")
	}))
	defer server.Close()

	stub := &sofficeStub{t: t}
	conv, staging, _ := newTestConverter(t, stub, nil)

	res, err := conv.Convert(context.Background(), Source{ContractID: "c1", URL: server.URL + "/download"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	want := filepath.Join(staging, "documents", "c1_download.pdf")
	if res.Path != want {
		t.Fatalf("Path = %q, want %q", res.Path, want)
	}
	if res.MediaType != MediaTypePDF {
		t.Fatalf("MediaType = %q, want %q", res.MediaType, MediaTypePDF)
	}
}

func TestConvertRejectsOversizeByHeader(t *testing.T) {
	payload := strings.Repeat("x", 1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", "1000")
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, func(cfg *Config) { cfg.MaxDownloadBytes = 16 })

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", URL: server.URL + "/big.pdf", Filename: "big.pdf"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("error %q missing size detail", err)
	}
}

func TestConvertRejectsOversizeMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			fmt.Fprint(w, strings.Repeat("y", 8))
			flusher.Flush()
		}
	}))
	defer server.Close()

	stub := &sofficeStub{t: t}
	conv, staging, _ := newTestConverter(t, stub, func(cfg *Config) { cfg.MaxDownloadBytes = 16 })

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", URL: server.URL + "/grow.pdf", Filename: "grow.pdf"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	matches, _ := filepath.Glob(filepath.Join(staging, "convert", "*", "*"))
	if len(matches) > 0 {
		t.Fatalf("partial downloads left behind: %v", matches)
	}
}

func TestConvertRemoteNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, nil)

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", URL: server.URL + "/gone.pdf", Filename: "gone.pdf"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestConvertRemoteServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	stub := &sofficeStub{t: t}
	conv, _, _ := newTestConverter(t, stub, nil)

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", URL: server.URL + "/flaky.pdf", Filename: "flaky.pdf"})
	if err == nil {
		t.Fatal("Convert succeeded despite 502 download")
	}
	if !services.Retryable(err) {
		t.Fatalf("download failure %v should requeue", err)
	}
}

func TestConvertOfficeDocument(t *testing.T) {
	stub := &sofficeStub{t: t}
	conv, staging, _ := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "statement of work.docx", "fake docx bytes")

	res, err := conv.Convert(context.Background(), Source{ContractID: "W911QX", LocalPath: src, Filename: "statement of work.docx"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	want := filepath.Join(staging, "documents", "w911qx_statement of work.pdf")
	if res.Path != want {
		t.Fatalf("Path = %q, want %q", res.Path, want)
	}
	if !res.Converted {
		t.Fatal("Converted = false after soffice ran")
	}
	if res.MediaType != MediaTypePDF {
		t.Fatalf("MediaType = %q, want %q", res.MediaType, MediaTypePDF)
	}
	if got := stub.callCount(); got != 1 {
		t.Fatalf("soffice calls = %d, want 1", got)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read staged document: %v", err)
	}
	if string(data) != "%PDF-1.4 converted" {
		t.Fatalf("staged content = %q", data)
	}
}

func TestConvertRetriesTransientStartup(t *testing.T) {
	stub := &sofficeStub{t: t, failUntil: 2, stderr: "Fatal Error: The application cannot be started"}
	conv, _, delays := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "report.docx", "fake docx bytes")

	res, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "report.docx"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if !res.Converted {
		t.Fatal("Converted = false after retried conversion")
	}
	if got := stub.callCount(); got != 3 {
		t.Fatalf("soffice calls = %d, want 3", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("retry delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("retry delays = %v, want %v", *delays, want)
		}
	}
}

func TestConvertReleasesPermitDuringBackoff(t *testing.T) {
	stub := &sofficeStub{t: t, failUntil: 1, stderr: "javaldx: Could not find a Java Runtime Environment!"}
	pool, err := respool.New(1)
	if err != nil {
		t.Fatal(err)
	}
	var heldDuringSleep []int
	conv := NewConverter(Config{StagingDir: t.TempDir()}, pool, nil,
		WithCommandRunner(stub.Runner),
		WithSleeper(func(time.Duration) { heldDuringSleep = append(heldDuringSleep, pool.InUse()) }),
	)
	src := writeSourceFile(t, "report.docx", "fake docx bytes")

	if _, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "report.docx"}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if len(heldDuringSleep) != 1 {
		t.Fatalf("expected one retry sleep, got %d", len(heldDuringSleep))
	}
	if heldDuringSleep[0] != 0 {
		t.Fatalf("converter permit held across backoff sleep, in use = %d", heldDuringSleep[0])
	}
	if pool.InUse() != 0 {
		t.Fatalf("permit leaked after conversion, in use = %d", pool.InUse())
	}
}

func TestConvertTransientExhaustion(t *testing.T) {
	stub := &sofficeStub{t: t, failUntil: 100, stderr: "User installation could not be completed"}
	conv, _, delays := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "report.docx", "fake docx bytes")

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "report.docx"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("error %q missing attempt count", err)
	}
	if got := stub.callCount(); got != 3 {
		t.Fatalf("soffice calls = %d, want 3", got)
	}
	if got := len(*delays); got != 2 {
		t.Fatalf("retry sleeps = %d, want 2", got)
	}
}

func TestConvertDocumentFailureDoesNotRetry(t *testing.T) {
	stub := &sofficeStub{t: t, failUntil: 100, stderr: "Error: source file could not be loaded"}
	conv, _, delays := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "corrupt.doc", "not really a doc")

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "corrupt.doc"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if got := stub.callCount(); got != 1 {
		t.Fatalf("soffice calls = %d, want 1", got)
	}
	if got := len(*delays); got != 0 {
		t.Fatalf("retry sleeps = %d, want 0", got)
	}
}

func TestConvertMissingOutputFailsImmediately(t *testing.T) {
	stub := &sofficeStub{t: t, skipWrite: true}
	conv, _, _ := newTestConverter(t, stub, nil)
	src := writeSourceFile(t, "report.rtf", "rtf bytes")

	_, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: "report.rtf"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if !strings.Contains(err.Error(), "produced no output") {
		t.Fatalf("error %q missing output detail", err)
	}
	if got := stub.callCount(); got != 1 {
		t.Fatalf("soffice calls = %d, want 1", got)
	}
}

func TestConvertBoundsConverterProcesses(t *testing.T) {
	stub := &sofficeStub{t: t, delay: 10 * time.Millisecond}
	conv, _, _ := newTestConverter(t, stub, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		src := writeSourceFile(t, fmt.Sprintf("doc%d.docx", i), "fake docx bytes")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := conv.Convert(context.Background(), Source{ContractID: "c1", LocalPath: src, Filename: filepath.Base(src)}); err != nil {
				t.Errorf("Convert: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := stub.peak.Load(); got > 1 {
		t.Fatalf("peak concurrent soffice processes = %d, want <= 1", got)
	}
}
