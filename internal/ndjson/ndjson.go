// Package ndjson reads newline-delimited JSON records from a stream.
package ndjson

import (
	"bufio"
	"context"
	"io"
)

// MaxLineSize is the longest line Stream accepts; verbose test output can
// put large payloads on a single line.
const MaxLineSize = 4 * 1024 * 1024

type scanResult struct {
	line []byte
	err  error
}

// Stream decodes each non-empty line of r with decode and calls fn with the
// result, in order. Lines that fail to decode are counted and skipped.
// Stops on EOF, on the first error from fn, or when ctx is cancelled, and
// returns the number of malformed lines.
//
// The scanner runs in its own goroutine. On cancel Stream closes r if it is
// an io.Closer; otherwise the caller closes the underlying reader.
func Stream[T any](ctx context.Context, r io.Reader, decode func([]byte) (T, error), fn func(T) error) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			cp := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- scanResult{line: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	var malformed int
	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if res.err != nil {
				return malformed, res.err
			}
			if len(res.line) == 0 {
				continue
			}
			rec, err := decode(res.line)
			if err != nil {
				malformed++
				continue
			}
			if err := fn(rec); err != nil {
				return malformed, err
			}
		}
	}
}
