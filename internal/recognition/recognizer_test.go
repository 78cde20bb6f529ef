package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docket/internal/services"
)

// ocrStub fakes pdftoppm and tesseract. Rasterization writes real PNG stubs
// so the recognizer's glob finds them.
type ocrStub struct {
	t *testing.T

	mu        sync.Mutex
	pages     int
	pageText  map[int]string
	failPages map[int]bool
	emptyOnce map[int]bool
	attempts  map[int]int

	rasterizeErr    error
	rasterizeStderr string
	prefix          string

	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
}

func newOCRStub(t *testing.T, pages int) *ocrStub {
	return &ocrStub{
		t:         t,
		pages:     pages,
		pageText:  make(map[int]string),
		failPages: make(map[int]bool),
		emptyOnce: make(map[int]bool),
		attempts:  make(map[int]int),
	}
}

func (s *ocrStub) Runner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch name {
	case PdftoppmCommand:
		return s.rasterize(args)
	case TesseractCommand:
		return s.recognize(ctx, args)
	default:
		s.t.Errorf("unexpected command %q", name)
		return nil, nil, fmt.Errorf("unexpected command %q", name)
	}
}

func (s *ocrStub) rasterize(args []string) ([]byte, []byte, error) {
	if s.rasterizeErr != nil {
		return nil, []byte(s.rasterizeStderr), s.rasterizeErr
	}
	prefix := args[len(args)-1]
	s.mu.Lock()
	s.prefix = prefix
	s.mu.Unlock()
	for n := 1; n <= s.pages; n++ {
		path := fmt.Sprintf("%s-%d.png", prefix, n)
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			s.t.Errorf("write page image: %v", err)
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func (s *ocrStub) recognize(_ context.Context, args []string) ([]byte, []byte, error) {
	if len(args) < 4 || args[1] != "stdout" || args[2] != "-l" {
		s.t.Errorf("unexpected tesseract args: %v", args)
	}
	number := s.pageNumber(args[0])

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
	s.attempts[number]++
	attempt := s.attempts[number]
	failed := s.failPages[number]
	empty := s.emptyOnce[number] && attempt == 1
	text, ok := s.pageText[number]
	s.mu.Unlock()

	if failed {
		return nil, []byte("tesseract crashed"), errors.New("exit status 1")
	}
	if empty {
		return []byte("  \n"), nil, nil
	}
	if !ok {
		text = fmt.Sprintf("page %d text", number)
	}
	return []byte(text + "\n"), nil, nil
}

func (s *ocrStub) pageNumber(image string) int {
	base := strings.TrimSuffix(filepath.Base(image), ".png")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		s.t.Errorf("image name without page number: %q", image)
		return 0
	}
	number, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		s.t.Errorf("parse page number from %q: %v", image, err)
	}
	return number
}

func (s *ocrStub) attemptCount(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[page]
}

func TestRecognizeAssemblesPagesInOrder(t *testing.T) {
	stub := newOCRStub(t, 3)
	stub.pageText[1] = "first page"
	stub.pageText[2] = "second page"
	stub.pageText[3] = "third page"
	rec := NewRecognizer(Config{MaxWorkers: 3}, nil, WithCommandRunner(stub.Runner))

	text, err := rec.Recognize(context.Background(), "/docs/scan.pdf")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	want := "first page\n\f\nsecond page\n\f\nthird page"
	if text != want {
		t.Fatalf("assembled text = %q, want %q", text, want)
	}
}

func TestRecognizeSkipsFailedPage(t *testing.T) {
	stub := newOCRStub(t, 3)
	stub.pageText[1] = "alpha"
	stub.pageText[3] = "gamma"
	stub.failPages[2] = true
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(stub.Runner))

	text, err := rec.Recognize(context.Background(), "/docs/scan.pdf")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	if want := "alpha\n\f\ngamma"; text != want {
		t.Fatalf("assembled text = %q, want %q", text, want)
	}
	if got := stub.attemptCount(2); got != DefaultPageAttempts {
		t.Fatalf("failed page attempts = %d, want %d", got, DefaultPageAttempts)
	}
}

func TestRecognizeRetriesEmptyOutput(t *testing.T) {
	stub := newOCRStub(t, 1)
	stub.pageText[1] = "recovered"
	stub.emptyOnce[1] = true
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(stub.Runner))

	text, err := rec.Recognize(context.Background(), "/docs/scan.pdf")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	if text != "recovered" {
		t.Fatalf("assembled text = %q, want %q", text, "recovered")
	}
	if got := stub.attemptCount(1); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestRecognizeAllPagesFailed(t *testing.T) {
	stub := newOCRStub(t, 2)
	stub.failPages[1] = true
	stub.failPages[2] = true
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(stub.Runner))

	_, err := rec.Recognize(context.Background(), "/docs/scan.pdf")
	if err == nil {
		t.Fatal("Recognize succeeded with every page failing")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if !strings.Contains(err.Error(), "no pages recognized") {
		t.Fatalf("error %q missing failure detail", err)
	}
}

func TestRecognizeRasterizeFailure(t *testing.T) {
	stub := newOCRStub(t, 0)
	stub.rasterizeErr = errors.New("exit status 1")
	stub.rasterizeStderr = "Syntax Error: couldn't read xref table"
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(stub.Runner))

	_, err := rec.Recognize(context.Background(), "/docs/broken.pdf")
	if err == nil {
		t.Fatal("Recognize succeeded despite rasterizer failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if !strings.Contains(err.Error(), "xref table") {
		t.Fatalf("error %q missing rasterizer stderr", err)
	}
}

func TestRecognizeNoPagesRendered(t *testing.T) {
	stub := newOCRStub(t, 0)
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(stub.Runner))

	_, err := rec.Recognize(context.Background(), "/docs/empty.pdf")
	if err == nil {
		t.Fatal("Recognize succeeded with zero rendered pages")
	}
	if !strings.Contains(err.Error(), "no pages rendered") {
		t.Fatalf("error %q missing render detail", err)
	}
}

func TestRecognizeRejectsEmptyPath(t *testing.T) {
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(newOCRStub(t, 1).Runner))

	_, err := rec.Recognize(context.Background(), "   ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestRecognizeBoundsParallelism(t *testing.T) {
	const workers = 2
	stub := newOCRStub(t, 6)
	stub.delay = 10 * time.Millisecond
	rec := NewRecognizer(Config{MaxWorkers: workers}, nil, WithCommandRunner(stub.Runner))

	if _, err := rec.Recognize(context.Background(), "/docs/scan.pdf"); err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	if got := stub.peak.Load(); got > workers {
		t.Fatalf("peak concurrent recognitions = %d, want <= %d", got, workers)
	}
}

func TestRecognizeRemovesTempDir(t *testing.T) {
	stub := newOCRStub(t, 1)
	rec := NewRecognizer(Config{}, nil, WithCommandRunner(stub.Runner))

	if _, err := rec.Recognize(context.Background(), "/docs/scan.pdf"); err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	stub.mu.Lock()
	tmpDir := filepath.Dir(stub.prefix)
	stub.mu.Unlock()
	if _, err := os.Stat(tmpDir); !os.IsNotExist(err) {
		t.Fatalf("temp dir %q still present (stat err = %v)", tmpDir, err)
	}
}
