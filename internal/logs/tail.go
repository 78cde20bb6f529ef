package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// TailOptions controls a single read against a log file. A negative Offset
// requests the last Limit lines; a non-negative Offset reads forward from
// that byte position.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read plus the byte offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

const pollInterval = 250 * time.Millisecond

// Tail reads log lines from path according to opts. A missing file is not an
// error; the result carries offset zero so a later call starts from the
// beginning once the file exists.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	lines, offset, err := readLines(path, opts.Offset, opts.Limit)
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}
	if len(lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return TailResult{Lines: lines, Offset: offset}, nil
	}
	return pollForLines(ctx, path, offset, opts.Wait)
}

// readLines reads from path. A negative offset scans the whole file and keeps
// the last limit lines; otherwise every line from offset to EOF is returned.
// The returned offset points at the end of the data read.
func readLines(path string, offset int64, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	size := info.Size()

	keepLast := offset < 0
	if keepLast {
		if limit <= 0 {
			return nil, size, nil
		}
	} else {
		if offset > size {
			// The file shrank underneath us, most likely rotation. Resume
			// from the end instead of replaying the whole file.
			offset = size
		}
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lines []string
		next  int
		full  bool
	)
	for scanner.Scan() {
		text := scanner.Text()
		switch {
		case !keepLast:
			lines = append(lines, text)
		case !full:
			lines = append(lines, text)
			full = len(lines) == limit
		default:
			lines[next] = text
			next = (next + 1) % limit
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	if full && next > 0 {
		rotated := make([]string, 0, limit)
		rotated = append(rotated, lines[next:]...)
		rotated = append(rotated, lines[:next]...)
		lines = rotated
	}

	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, end, nil
}

// pollForLines re-reads from offset until new lines land, the wait budget is
// spent, or the context ends.
func pollForLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, end, err := readLines(path, offset, 0)
		if err != nil {
			return result, err
		}
		if len(lines) > 0 {
			return TailResult{Lines: lines, Offset: end}, nil
		}
		result.Offset = end

		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
