package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docket/internal/conversion"
	"docket/internal/services"
)

type recognizerStub struct {
	t      *testing.T
	text   string
	err    error
	calls  int
	forbid bool
}

func (r *recognizerStub) Recognize(ctx context.Context, pdfPath string) (string, error) {
	r.calls++
	if r.forbid {
		r.t.Errorf("unexpected ocr fallback for %q", pdfPath)
	}
	return r.text, r.err
}

// pdftotextRunner fakes the pdftotext binary with fixed output.
func pdftotextRunner(t *testing.T, output string, err error) commandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		if name != PdftotextCommand {
			t.Errorf("unexpected command %q", name)
		}
		want := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
		for i, arg := range want {
			if i >= len(args) || args[i] != arg {
				t.Errorf("pdftotext args = %v, want prefix %v", args, want)
				break
			}
		}
		if len(args) == 0 || args[len(args)-1] != "-" {
			t.Errorf("pdftotext args = %v, want trailing \"-\"", args)
		}
		if err != nil {
			return nil, []byte("pdftotext failed"), err
		}
		return []byte(output), nil, nil
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"control characters dropped", "a\x00b\x07c", "abc"},
		{"tabs and form feeds kept", "col1\tcol2\fpage2", "col1\tcol2\fpage2"},
		{"trailing spaces trimmed", "line one   \nline two\t\n", "line one\nline two"},
		{"blank runs collapse", "a\n\n\n\n\nb", "a\n\nb"},
		{"space-only lines count as blank", "a\n   \n \nb", "a\n\nb"},
		{"invalid utf8 dropped", "ok\xff\xfestill ok", "okstill ok"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("first line   \n\n\n\nsecond line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ext := NewExtractor(Config{}, &recognizerStub{t: t, forbid: true}, nil)

	res, err := ext.Extract(context.Background(), path, conversion.MediaTypeText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Method != MethodTextFile {
		t.Fatalf("Method = %q, want %q", res.Method, MethodTextFile)
	}
	if want := "first line\n\nsecond line"; res.Text != want {
		t.Fatalf("Text = %q, want %q", res.Text, want)
	}
	if res.Pages != 1 {
		t.Fatalf("Pages = %d, want 1", res.Pages)
	}
}

func TestExtractTextFileTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0o644); err != nil {
		t.Fatal(err)
	}
	ext := NewExtractor(Config{MaxTextBytes: 16}, nil, nil)

	_, err := ext.Extract(context.Background(), path, conversion.MediaTypeText)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestExtractTextFileMissing(t *testing.T) {
	ext := NewExtractor(Config{}, nil, nil)

	_, err := ext.Extract(context.Background(), "/nonexistent/notes.txt", conversion.MediaTypeText)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestExtractPDFDirectText(t *testing.T) {
	page := strings.Repeat("contract terms and conditions ", 10)
	output := page + "\f" + page + "\f" + page
	rec := &recognizerStub{t: t, forbid: true}
	ext := NewExtractor(Config{}, rec, nil, WithCommandRunner(pdftotextRunner(t, output, nil)))

	res, err := ext.Extract(context.Background(), "/docs/award.pdf", conversion.MediaTypePDF)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Method != MethodPDFText {
		t.Fatalf("Method = %q, want %q", res.Method, MethodPDFText)
	}
	if res.Pages != 3 {
		t.Fatalf("Pages = %d, want 3", res.Pages)
	}
	if rec.calls != 0 {
		t.Fatalf("recognizer called %d times for a text PDF", rec.calls)
	}
}

func TestExtractScannedPDFFallsBackToOCR(t *testing.T) {
	recognized := strings.Repeat("SECTION B SUPPLIES OR SERVICES AND PRICES ", 20)
	rec := &recognizerStub{t: t, text: recognized}
	ext := NewExtractor(Config{}, rec, nil, WithCommandRunner(pdftotextRunner(t, "p1\fp2\fp3", nil)))

	res, err := ext.Extract(context.Background(), "/docs/scan.pdf", conversion.MediaTypePDF)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Method != MethodPDFOCR {
		t.Fatalf("Method = %q, want %q", res.Method, MethodPDFOCR)
	}
	if res.Text != Clean(recognized) {
		t.Fatalf("Text = %q, want recognized output", res.Text)
	}
	if rec.calls != 1 {
		t.Fatalf("recognizer calls = %d, want 1", rec.calls)
	}
}

func TestExtractKeepsDirectWhenOCRThin(t *testing.T) {
	direct := "Contract W911QX-24-D-0002"
	rec := &recognizerStub{t: t, text: "W911QX"}
	ext := NewExtractor(Config{}, rec, nil, WithCommandRunner(pdftotextRunner(t, direct, nil)))

	res, err := ext.Extract(context.Background(), "/docs/sparse.pdf", conversion.MediaTypePDF)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Method != MethodPDFText {
		t.Fatalf("Method = %q, want %q", res.Method, MethodPDFText)
	}
	if res.Text != direct {
		t.Fatalf("Text = %q, want direct output", res.Text)
	}
	if rec.calls != 1 {
		t.Fatalf("recognizer calls = %d, want 1", rec.calls)
	}
}

func TestExtractOCRFailureKeepsDirectText(t *testing.T) {
	direct := "Award W911QX"
	rec := &recognizerStub{t: t, err: errors.New("no pages recognized")}
	ext := NewExtractor(Config{}, rec, nil, WithCommandRunner(pdftotextRunner(t, direct, nil)))

	res, err := ext.Extract(context.Background(), "/docs/sparse.pdf", conversion.MediaTypePDF)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Text != direct {
		t.Fatalf("Text = %q, want direct output", res.Text)
	}
	if res.Method != MethodPDFText {
		t.Fatalf("Method = %q, want %q", res.Method, MethodPDFText)
	}
}

func TestExtractNoTextAnywhere(t *testing.T) {
	rec := &recognizerStub{t: t, text: "\x00\x01  "}
	ext := NewExtractor(Config{}, rec, nil, WithCommandRunner(pdftotextRunner(t, "   \n  ", nil)))

	_, err := ext.Extract(context.Background(), "/docs/blank.pdf", conversion.MediaTypePDF)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "no extractable text") {
		t.Fatalf("error %q missing detail", err)
	}
}

func TestExtractPdftotextFailureUsesOCR(t *testing.T) {
	recognized := strings.Repeat("scanned body text ", 10)
	rec := &recognizerStub{t: t, text: recognized}
	ext := NewExtractor(Config{}, rec, nil,
		WithCommandRunner(pdftotextRunner(t, "", errors.New("exit status 1"))))

	res, err := ext.Extract(context.Background(), "/docs/corrupt-xref.pdf", conversion.MediaTypePDF)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Method != MethodPDFOCR {
		t.Fatalf("Method = %q, want %q", res.Method, MethodPDFOCR)
	}
}

func TestExtractBothPathsFail(t *testing.T) {
	rec := &recognizerStub{t: t, err: services.Wrap(services.ErrExternalTool, "recognition", "ocr", "no pages recognized", nil)}
	ext := NewExtractor(Config{}, rec, nil,
		WithCommandRunner(pdftotextRunner(t, "", errors.New("exit status 1"))))

	_, err := ext.Extract(context.Background(), "/docs/broken.pdf", conversion.MediaTypePDF)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if !strings.Contains(err.Error(), "ocr fallback failed") {
		t.Fatalf("error %q missing fallback detail", err)
	}
}
