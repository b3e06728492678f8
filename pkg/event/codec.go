package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the three event variants on the wire.
const (
	KindRun  = "run"
	KindCase = "case"
	KindSub  = "sub"
)

// wireEvent is the NDJSON shape of every event kind.
type wireEvent struct {
	Kind       string     `json:"kind"`
	ID         string     `json:"id,omitempty"`
	Suite      string     `json:"suite,omitempty"`
	Name       string     `json:"name,omitempty"`
	RunName    string     `json:"run_name,omitempty"`
	Status     string     `json:"status"`
	Elapsed    float64    `json:"elapsed"`
	Message    string     `json:"message,omitempty"`
	Stacktrace string     `json:"stacktrace,omitempty"`
	Time       *time.Time `json:"time,omitempty"`
}

// Decode parses one NDJSON line into an Event.
func Decode(line []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	var ts time.Time
	if w.Time != nil {
		ts = *w.Time
	}

	switch w.Kind {
	case KindRun:
		status := RunStatus(w.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("run event: unknown status %q", w.Status)
		}
		return RunEvent{Status: status, RunName: w.RunName, Elapsed: w.Elapsed, Time: ts}, nil
	case KindCase:
		status := Status(w.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("case event %q: unknown status %q", w.ID, w.Status)
		}
		if w.ID == "" {
			return nil, fmt.Errorf("case event: missing id")
		}
		return CaseEvent{
			ID:            w.ID,
			SuiteFullName: w.Suite,
			Name:          w.Name,
			Status:        status,
			Elapsed:       w.Elapsed,
			Message:       w.Message,
			Stacktrace:    w.Stacktrace,
			Time:          ts,
		}, nil
	case KindSub:
		status := Status(w.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("sub event %q: unknown status %q", w.ID, w.Status)
		}
		if w.ID == "" {
			return nil, fmt.Errorf("sub event: missing id")
		}
		return SubEvent{
			ID:         w.ID,
			Name:       w.Name,
			Status:     status,
			Elapsed:    w.Elapsed,
			Message:    w.Message,
			Stacktrace: w.Stacktrace,
			Time:       ts,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", w.Kind)
	}
}

// Encode renders e as a single JSON object without a trailing newline.
func Encode(e Event) ([]byte, error) {
	var w wireEvent
	switch v := e.(type) {
	case RunEvent:
		w = wireEvent{Kind: KindRun, RunName: v.RunName, Status: string(v.Status), Elapsed: v.Elapsed, Time: timePtr(v.Time)}
	case CaseEvent:
		w = wireEvent{
			Kind:       KindCase,
			ID:         v.ID,
			Suite:      v.SuiteFullName,
			Name:       v.Name,
			Status:     string(v.Status),
			Elapsed:    v.Elapsed,
			Message:    v.Message,
			Stacktrace: v.Stacktrace,
			Time:       timePtr(v.Time),
		}
	case SubEvent:
		w = wireEvent{
			Kind:       KindSub,
			ID:         v.ID,
			Name:       v.Name,
			Status:     string(v.Status),
			Elapsed:    v.Elapsed,
			Message:    v.Message,
			Stacktrace: v.Stacktrace,
			Time:       timePtr(v.Time),
		}
	default:
		return nil, fmt.Errorf("encoding event: unsupported type %T", e)
	}
	return json.Marshal(w)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
