package event

import (
	"context"
	"io"

	"github.com/dkoosis/tally/internal/ndjson"
)

// ProcessFunc is called once per decoded event. A non-nil error stops Stream.
type ProcessFunc func(Event) error

// Stream decodes NDJSON events from r and calls fn for each one, in order.
// Blank lines are ignored; lines that fail to decode are counted and skipped.
// Stops on EOF, on the first error returned by fn, or when ctx is cancelled.
//
// On cancel, Stream closes r if it implements io.Closer so the scanner
// goroutine can exit. Otherwise the caller owns closing the underlying reader.
func Stream(ctx context.Context, r io.Reader, fn ProcessFunc) (int, error) {
	return ndjson.Stream[Event](ctx, r, Decode, fn)
}
