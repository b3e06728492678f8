package testjson

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkoosis/tally/pkg/event"
)

// incompleteMessage is the failure message of cases still open at Finish.
const incompleteMessage = "test did not complete"

type subState struct {
	name   string
	start  float64
	output []string
}

type caseState struct {
	id     string
	pkg    string
	name   string
	start  time.Time
	cursor float64 // last boundary reported for this case, seconds since start
	subs   map[string]*subState
	order  []string // open sub-tests by start
	output []string
}

// Translator converts go test -json events into lifecycle events.
//
// Top-level tests become cases with id "package.Test" and the package as
// suite. First-level subtests become sub-tests; deeper levels are folded
// into their first-level ancestor. Elapsed values are seconds since the
// case's run event, taken from event times when present and from reported
// durations otherwise.
//
// Sub-tests are emitted when they finish, as a running/terminal pair whose
// start never precedes the case's last boundary. Parallel subtests are thus
// reported one after another and never overlap.
//
// A Translator is not safe for concurrent use.
type Translator struct {
	runName string
	emit    event.ProcessFunc

	started   bool
	first     time.Time
	last      time.Time
	pkgMax    float64
	failed    bool
	cases     map[string]*caseState
	caseOrder []string
	runs      map[string]int
}

// NewTranslator returns a Translator that sends lifecycle events to emit.
func NewTranslator(runName string, emit event.ProcessFunc) *Translator {
	return &Translator{
		runName: runName,
		emit:    emit,
		cases:   make(map[string]*caseState),
		runs:    make(map[string]int),
	}
}

// Translate consumes one go test event.
func (t *Translator) Translate(e TestEvent) error {
	if !t.started {
		t.started = true
		t.first = e.Time
		if err := t.emit(event.RunEvent{Status: event.RunInitializing, RunName: t.runName, Time: e.Time}); err != nil {
			return err
		}
	}
	if e.Time.After(t.last) {
		t.last = e.Time
	}

	if e.Test == "" {
		t.packageEvent(e)
		return nil
	}

	top, sub := splitTest(e.Test)
	key := caseKey(e.Package, top)

	switch e.Action {
	case ActionRun:
		if sub == "" {
			return t.startCase(key, top, e)
		}
		t.startSub(key, sub, e)
	case ActionOutput:
		t.output(key, sub, e.Output)
	case ActionPass, ActionFail, ActionSkip:
		if e.Action == ActionFail {
			t.failed = true
		}
		if sub == "" {
			return t.completeCase(key, top, statusFor(e.Action), e)
		}
		if sub == e.Test[len(top)+1:] {
			return t.completeSub(key, sub, statusFor(e.Action), e)
		}
	}
	return nil
}

func (t *Translator) packageEvent(e TestEvent) {
	switch e.Action {
	case ActionFail:
		t.failed = true
		fallthrough
	case ActionPass, ActionSkip:
		if e.Elapsed > t.pkgMax {
			t.pkgMax = e.Elapsed
		}
	}
}

func (t *Translator) startCase(key, top string, e TestEvent) error {
	if _, open := t.cases[key]; open {
		return nil
	}
	t.runs[key]++
	id := key
	if n := t.runs[key]; n > 1 {
		id = fmt.Sprintf("%s#%d", key, n)
	}
	cs := &caseState{
		id:    id,
		pkg:   e.Package,
		name:  top,
		start: e.Time,
		subs:  make(map[string]*subState),
	}
	t.cases[key] = cs
	t.caseOrder = append(t.caseOrder, key)
	return t.emit(event.CaseEvent{
		ID:            cs.id,
		SuiteFullName: cs.pkg,
		Name:          cs.name,
		Status:        event.StatusRunning,
		Time:          e.Time,
	})
}

func (t *Translator) startSub(key, name string, e TestEvent) {
	cs, ok := t.cases[key]
	if !ok {
		return
	}
	if _, open := cs.subs[name]; open {
		return
	}
	cs.subs[name] = &subState{name: name, start: cs.at(e.Time, cs.cursor)}
	cs.order = append(cs.order, name)
}

func (t *Translator) output(key, sub, text string) {
	cs, ok := t.cases[key]
	if !ok {
		return
	}
	line := strings.TrimRight(text, "\n")
	if !meaningful(line) {
		return
	}
	cs.output = append(cs.output, line)
	if s, ok := cs.subs[sub]; ok {
		s.output = append(s.output, line)
	}
}

func (t *Translator) completeSub(key, name string, status event.Status, e TestEvent) error {
	cs, ok := t.cases[key]
	if !ok {
		return nil
	}
	s, ok := cs.subs[name]
	if !ok {
		// Completion without a run event: treat it as starting at the last boundary.
		s = &subState{name: name, start: cs.cursor}
	}
	cs.closeSub(name)

	begin := max(s.start, cs.cursor)
	end := max(cs.at(e.Time, s.start+e.Elapsed), begin)
	cs.cursor = end

	if err := t.emit(event.SubEvent{ID: cs.id, Name: name, Status: event.StatusRunning, Elapsed: begin}); err != nil {
		return err
	}
	msg, trace := outcome(status, s.output)
	return t.emit(event.SubEvent{
		ID:         cs.id,
		Name:       name,
		Status:     status,
		Elapsed:    end,
		Message:    msg,
		Stacktrace: trace,
		Time:       e.Time,
	})
}

func (t *Translator) completeCase(key, top string, status event.Status, e TestEvent) error {
	cs, ok := t.cases[key]
	end := e.Elapsed
	if ok {
		end = cs.at(e.Time, e.Elapsed)
	} else {
		// A result for a test that never ran, e.g. a truncated stream.
		if err := t.startCase(key, top, e); err != nil {
			return err
		}
		cs = t.cases[key]
	}
	return t.finishCase(key, cs, status, end, e.Time, "")
}

// finishCase emits the case completion. Sub-tests still open are reported
// one after another; the last one is left open so the case completion
// closes it with the case's outcome.
func (t *Translator) finishCase(key string, cs *caseState, status event.Status, end float64, at time.Time, fallback string) error {
	delete(t.cases, key)

	for i, name := range cs.order {
		s := cs.subs[name]
		begin := max(s.start, cs.cursor)
		if err := t.emit(event.SubEvent{ID: cs.id, Name: name, Status: event.StatusRunning, Elapsed: begin}); err != nil {
			return err
		}
		cs.cursor = begin
		if i == len(cs.order)-1 {
			break
		}
		msg, trace := outcome(status, s.output)
		if msg == "" && status == event.StatusFailed {
			msg = fallback
		}
		if err := t.emit(event.SubEvent{ID: cs.id, Name: name, Status: status, Elapsed: begin, Message: msg, Stacktrace: trace}); err != nil {
			return err
		}
	}

	msg, trace := outcome(status, cs.output)
	if msg == "" {
		msg = fallback
	}
	return t.emit(event.CaseEvent{
		ID:            cs.id,
		SuiteFullName: cs.pkg,
		Name:          cs.name,
		Status:        status,
		Elapsed:       max(end, cs.cursor),
		Message:       msg,
		Stacktrace:    trace,
		Time:          at,
	})
}

// Finish fails every case that is still open and emits the run completion.
// It does nothing if no event was translated.
func (t *Translator) Finish() error {
	if !t.started {
		return nil
	}
	for _, key := range t.caseOrder {
		cs, ok := t.cases[key]
		if !ok {
			continue
		}
		t.failed = true
		end := cs.at(t.last, cs.cursor)
		if err := t.finishCase(key, cs, event.StatusFailed, end, t.last, incompleteMessage); err != nil {
			return err
		}
	}
	t.caseOrder = nil

	status := event.RunSuccess
	if t.failed {
		status = event.RunFailed
	}
	elapsed := t.pkgMax
	if !t.first.IsZero() && t.last.After(t.first) {
		elapsed = max(elapsed, t.last.Sub(t.first).Seconds())
	}
	return t.emit(event.RunEvent{Status: status, RunName: t.runName, Elapsed: elapsed, Time: t.last})
}

// at returns seconds between the case start and ts, or fallback when either
// time is missing.
func (cs *caseState) at(ts time.Time, fallback float64) float64 {
	if ts.IsZero() || cs.start.IsZero() {
		return fallback
	}
	return max(ts.Sub(cs.start).Seconds(), 0)
}

func (cs *caseState) closeSub(name string) {
	delete(cs.subs, name)
	for i, n := range cs.order {
		if n == name {
			cs.order = append(cs.order[:i], cs.order[i+1:]...)
			return
		}
	}
}

// splitTest returns the top-level test and the first-level subtest of a
// go test name such as "TestX/sub/deeper".
func splitTest(name string) (top, sub string) {
	top, rest, ok := strings.Cut(name, "/")
	if !ok {
		return name, ""
	}
	sub, _, _ = strings.Cut(rest, "/")
	return top, sub
}

func caseKey(pkg, test string) string { return event.FullName(pkg, test) }

func statusFor(action string) event.Status {
	switch action {
	case ActionPass:
		return event.StatusPassed
	case ActionSkip:
		return event.StatusSkipped
	default:
		return event.StatusFailed
	}
}

// meaningful drops go test framing lines and blank output.
func meaningful(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed == "PASS" || trimmed == "FAIL" {
		return false
	}
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS", "--- FAIL", "--- SKIP"} {
		if strings.HasPrefix(trimmed, prefix) {
			return false
		}
	}
	return true
}

// outcome derives the message and stacktrace from captured output. Passed
// results carry neither; skips carry only the reason.
func outcome(status event.Status, output []string) (message, stacktrace string) {
	if status == event.StatusPassed || len(output) == 0 {
		return "", ""
	}
	message = strings.TrimSpace(output[0])
	if status == event.StatusFailed {
		stacktrace = strings.Join(output, "\n")
	}
	return message, stacktrace
}
