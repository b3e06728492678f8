// Package aggregate turns a flat stream of test-lifecycle events into case
// and sub-test results with per-node elapsed time.
//
// Elapsed values are always deltas since the last boundary seen for an id:
// a sub-test gets the time since the previous boundary of its case, and a
// case gets its final elapsed minus what its sub-tests already took.
//
// Two closure heuristics handle malformed streams:
//   - a sub-test that starts while another is still open closes the open
//     one as passed at the new start time;
//   - a case that completes while a sub-test is open closes that sub-test
//     with the case's status, message and stacktrace.
//
// Both are guesses about the real sub-test outcome, kept because report
// consumers depend on them.
package aggregate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dkoosis/tally/pkg/event"
	"github.com/dkoosis/tally/pkg/report"
)

// Aggregator is the lifecycle state machine. It is safe for concurrent use
// provided events for a single id arrive in order and not concurrently.
type Aggregator struct {
	sink   report.Sink
	store  *store
	logger *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for closure and leftover-case diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New returns an Aggregator that reports to sink.
func New(sink report.Sink, opts ...Option) *Aggregator {
	a := &Aggregator{
		sink:   sink,
		store:  newStore(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle dispatches e to the handler for its kind.
func (a *Aggregator) Handle(e event.Event) error {
	switch v := e.(type) {
	case event.RunEvent:
		return a.HandleRun(v)
	case event.CaseEvent:
		return a.HandleCase(v)
	case event.SubEvent:
		return a.HandleSub(v)
	default:
		return fmt.Errorf("unsupported event type %T", e)
	}
}

// HandleRun forwards run start and completion to the sink.
func (a *Aggregator) HandleRun(e event.RunEvent) error {
	switch e.Status {
	case event.RunInitializing:
		if err := a.sink.RunStarted(e.RunName); err != nil {
			return fmt.Errorf("run started: %w", err)
		}
	case event.RunSuccess, event.RunFailed:
		for _, id := range a.store.ids() {
			a.logger.Warn("case never completed", "id", id)
		}
		if err := a.sink.RunCompleted(e.Elapsed); err != nil {
			return fmt.Errorf("run completed: %w", err)
		}
	}
	return nil
}

// HandleCase tracks a case from running to completion and emits its result.
func (a *Aggregator) HandleCase(e event.CaseEvent) error {
	starting := e.Status == event.StatusRunning || e.Status == event.StatusSkipped
	if !starting && !e.IsCompleted() {
		return nil
	}

	rt, created := a.store.acquire(e.ID)
	defer rt.mu.Unlock()

	if created {
		rt.suiteFullName = e.SuiteFullName
		rt.name = e.Name
		rt.lastSeen = e.Elapsed
	}

	// A sink that rejects CaseStarted reports its own error; the others
	// still receive the case's results.
	var errs []error
	info := report.CaseInfo{ID: e.ID, SuiteFullName: rt.suiteFullName, Name: rt.name, Time: e.Time}
	if err := a.sink.CaseStarted(info); err != nil {
		errs = append(errs, fmt.Errorf("case %s started: %w", info.FullName(), err))
	}

	if !e.IsCompleted() {
		return errors.Join(errs...)
	}
	defer a.store.remove(rt)

	if rt.hasActive {
		a.logger.Debug("closing open sub-test with case status",
			"id", e.ID, "subtest", rt.activeSubtest, "status", e.Status)
		closing := event.SubEvent{
			ID:         e.ID,
			Name:       rt.activeSubtest,
			Status:     e.Status,
			Message:    e.Message,
			Stacktrace: e.Stacktrace,
			Elapsed:    e.Elapsed,
			Time:       e.Time,
		}
		if err := a.completeSub(rt, closing); err != nil {
			errs = append(errs, err)
		}
	}

	res := report.CaseResult{
		ID:            e.ID,
		SuiteFullName: rt.suiteFullName,
		Name:          rt.name,
		ClassName:     rt.suiteFullName,
		Status:        e.Status,
		Message:       e.Message,
		Stacktrace:    e.Stacktrace,
		Elapsed:       e.Elapsed - rt.subtestTotal,
	}
	if err := a.sink.CaseResult(res); err != nil {
		errs = append(errs, fmt.Errorf("case %s result: %w", res.FullName(), err))
	}
	return errors.Join(errs...)
}

// HandleSub opens and closes sub-tests of a running case.
func (a *Aggregator) HandleSub(e event.SubEvent) error {
	if e.Status != event.StatusRunning && !e.IsCompleted() {
		return nil
	}

	rt, ok := a.store.lookup(e.ID)
	if !ok {
		return &ConsistencyError{ID: e.ID, Got: e.Name, Reason: reasonNotRunning}
	}
	defer rt.mu.Unlock()

	if e.IsCompleted() {
		return a.completeSub(rt, e)
	}

	var err error
	if rt.hasActive {
		a.logger.Debug("closing open sub-test as passed",
			"id", e.ID, "subtest", rt.activeSubtest, "next", e.Name)
		err = a.completeSub(rt, event.SubEvent{
			ID:      e.ID,
			Name:    rt.activeSubtest,
			Status:  event.StatusPassed,
			Elapsed: e.Elapsed,
			Time:    e.Time,
		})
	}
	rt.activeSubtest = e.Name
	rt.hasActive = true
	rt.lastSeen = e.Elapsed
	return err
}

// completeSub closes the active sub-test of rt. The caller holds rt.mu.
func (a *Aggregator) completeSub(rt *caseRuntime, e event.SubEvent) error {
	if !rt.hasActive {
		return &ConsistencyError{ID: rt.id, Got: e.Name, Reason: reasonNoActive}
	}
	if rt.activeSubtest != e.Name {
		return &ConsistencyError{ID: rt.id, Active: rt.activeSubtest, Got: e.Name, Reason: reasonMismatch}
	}

	elapsed := e.Elapsed - rt.lastSeen
	rt.subtestTotal += elapsed
	rt.activeSubtest = ""
	rt.hasActive = false
	rt.lastSeen = e.Elapsed

	res := report.SubResult{
		ID:            rt.id,
		Name:          e.Name,
		SuiteFullName: rt.suiteFullName,
		CaseFullName:  event.FullName(rt.suiteFullName, rt.name),
		Status:        e.Status,
		Message:       e.Message,
		Stacktrace:    e.Stacktrace,
		Elapsed:       elapsed,
	}
	if err := a.sink.SubtestResult(res); err != nil {
		return fmt.Errorf("sub-test %s of %s: %w", res.Name, res.CaseFullName, err)
	}
	return nil
}

// Pending returns the number of cases that have not completed.
func (a *Aggregator) Pending() int {
	return a.store.len()
}
