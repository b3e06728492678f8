// Package detect sniffs an input stream to determine its format.
package detect

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/dkoosis/tally/pkg/event"
)

// Format represents a recognized input format.
type Format int

const (
	Unknown    Format = iota
	Lifecycle         // tally lifecycle NDJSON (objects with a "kind" field)
	GoTestJSON        // go test -json NDJSON stream
)

func (f Format) String() string {
	switch f {
	case Lifecycle:
		return "events"
	case GoTestJSON:
		return "gotest"
	default:
		return "unknown"
	}
}

// ParseFormat maps a -format flag value to a Format. "auto" and unknown
// names map to Unknown, which callers treat as "sniff the input".
func ParseFormat(name string) Format {
	switch name {
	case "events":
		return Lifecycle
	case "gotest":
		return GoTestJSON
	default:
		return Unknown
	}
}

// maxPeek bounds how much of the first line SniffReader inspects.
const maxPeek = 64 * 1024

// Sniff examines the first line of input to determine its format.
func Sniff(data []byte) Format {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 || data[0] != '{' {
		return Unknown
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}

	var head struct {
		Kind   string `json:"kind"`
		Action string `json:"Action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Unknown
	}

	switch head.Kind {
	case event.KindRun, event.KindCase, event.KindSub:
		return Lifecycle
	}

	validActions := map[string]bool{
		"start": true, "run": true, "pause": true, "cont": true,
		"pass": true, "bench": true, "fail": true, "output": true, "skip": true,
	}
	if validActions[head.Action] {
		return GoTestJSON
	}
	return Unknown
}

// SniffReader peeks at the first non-blank line of r without consuming it.
func SniffReader(r *bufio.Reader) (Format, error) {
	for n := 512; ; n *= 2 {
		if n > maxPeek {
			n = maxPeek
		}
		data, err := r.Peek(n)
		trimmed := bytes.TrimLeft(data, " \t\r\n")
		if len(trimmed) > 0 && bytes.IndexByte(trimmed, '\n') >= 0 {
			return Sniff(trimmed), nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
				return Sniff(trimmed), nil
			}
			return Unknown, err
		}
		if n == maxPeek {
			return Sniff(trimmed), nil
		}
	}
}
