package testjson

import (
	"context"
	"encoding/json"
	"io"

	"github.com/dkoosis/tally/internal/ndjson"
)

// Stream parses go test -json events line by line and calls fn for each one.
// Stops on EOF, on the first error from fn, or when ctx is cancelled. Returns
// the number of malformed lines skipped and any error.
//
// On context cancel Stream closes r if it implements io.Closer; a
// *bufio.Reader must be closed by the caller through its underlying reader.
func Stream(ctx context.Context, r io.Reader, fn ProcessFunc) (int, error) {
	return ndjson.Stream[TestEvent](ctx, r, decodeEvent, fn)
}

func decodeEvent(line []byte) (TestEvent, error) {
	var e TestEvent
	err := json.Unmarshal(line, &e)
	return e, err
}
