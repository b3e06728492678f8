package aggregate

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/tally/pkg/event"
	"github.com/dkoosis/tally/pkg/report"
)

func caseEv(id string, status event.Status, elapsed float64) event.CaseEvent {
	return event.CaseEvent{ID: id, SuiteFullName: "S", Name: "C" + id, Status: status, Elapsed: elapsed}
}

func subEv(id, name string, status event.Status, elapsed float64) event.SubEvent {
	return event.SubEvent{ID: id, Name: name, Status: status, Elapsed: elapsed}
}

func feed(t *testing.T, a *Aggregator, events ...event.Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, a.Handle(e))
	}
}

func TestAggregator_SplitsElapsed_When_SubtestClosedExplicitly(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a,
		event.CaseEvent{ID: "1", SuiteFullName: "S", Name: "C", Status: event.StatusRunning, Elapsed: 0},
		subEv("1", "sub1", event.StatusRunning, 1.0),
		subEv("1", "sub1", event.StatusPassed, 3.0),
		event.CaseEvent{ID: "1", SuiteFullName: "S", Name: "C", Status: event.StatusPassed, Elapsed: 5.0},
	)

	subs := rec.SubResults()
	require.Len(t, subs, 1)
	assert.Equal(t, "sub1", subs[0].Name)
	assert.Equal(t, "S.C", subs[0].CaseFullName)
	assert.Equal(t, "S", subs[0].SuiteFullName)
	assert.Equal(t, event.StatusPassed, subs[0].Status)
	assert.InDelta(t, 2.0, subs[0].Elapsed, 1e-9)

	cases := rec.CaseResults()
	require.Len(t, cases, 1)
	assert.Equal(t, "C", cases[0].Name)
	assert.Equal(t, "S", cases[0].ClassName)
	assert.Equal(t, event.StatusPassed, cases[0].Status)
	assert.InDelta(t, 3.0, cases[0].Elapsed, 1e-9)

	// Sub-test result must precede the case result.
	var hooks []string
	for _, c := range rec.Calls() {
		if c.Hook == "subtest_result" || c.Hook == "case_result" {
			hooks = append(hooks, c.Hook)
		}
	}
	assert.Equal(t, []string{"subtest_result", "case_result"}, hooks)
	assert.Zero(t, a.Pending())
}

func TestAggregator_InheritsCaseFailure_When_SubtestStillOpen(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a,
		event.CaseEvent{ID: "1", SuiteFullName: "S", Name: "C", Status: event.StatusRunning, Elapsed: 0},
		subEv("1", "sub1", event.StatusRunning, 2.0),
		event.CaseEvent{
			ID: "1", SuiteFullName: "S", Name: "C", Status: event.StatusFailed, Elapsed: 4.0,
			Message: "boom", Stacktrace: "trace",
		},
	)

	subs := rec.SubResults()
	require.Len(t, subs, 1)
	assert.Equal(t, "sub1", subs[0].Name)
	assert.Equal(t, event.StatusFailed, subs[0].Status)
	assert.Equal(t, "boom", subs[0].Message)
	assert.Equal(t, "trace", subs[0].Stacktrace)
	assert.InDelta(t, 2.0, subs[0].Elapsed, 1e-9)

	cases := rec.CaseResults()
	require.Len(t, cases, 1)
	assert.Equal(t, event.StatusFailed, cases[0].Status)
	assert.InDelta(t, 2.0, cases[0].Elapsed, 1e-9)
}

func TestAggregator_ClosesPreviousAsPassed_When_NextSubtestStarts(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a,
		caseEv("1", event.StatusRunning, 0),
		subEv("1", "first", event.StatusRunning, 1.0),
		subEv("1", "second", event.StatusRunning, 2.5),
		subEv("1", "second", event.StatusFailed, 4.0),
		caseEv("1", event.StatusFailed, 4.5),
	)

	subs := rec.SubResults()
	require.Len(t, subs, 2)
	assert.Equal(t, "first", subs[0].Name)
	assert.Equal(t, event.StatusPassed, subs[0].Status)
	assert.Empty(t, subs[0].Message)
	assert.InDelta(t, 1.5, subs[0].Elapsed, 1e-9)
	assert.Equal(t, "second", subs[1].Name)
	assert.Equal(t, event.StatusFailed, subs[1].Status)
	assert.InDelta(t, 1.5, subs[1].Elapsed, 1e-9)

	cases := rec.CaseResults()
	require.Len(t, cases, 1)
	assert.InDelta(t, 1.5, cases[0].Elapsed, 1e-9)
}

func TestAggregator_ReturnsConsistencyError_When_CompletionNamesOtherSubtest(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a,
		caseEv("1", event.StatusRunning, 0),
		subEv("1", "sub1", event.StatusRunning, 1.0),
	)

	err := a.Handle(subEv("1", "other", event.StatusPassed, 2.0))
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "1", ce.ID)
	assert.Equal(t, "sub1", ce.Active)
	assert.Equal(t, "other", ce.Got)
	assert.Empty(t, rec.SubResults())

	// State is untouched: the real completion still works.
	require.NoError(t, a.Handle(subEv("1", "sub1", event.StatusPassed, 3.0)))
	subs := rec.SubResults()
	require.Len(t, subs, 1)
	assert.InDelta(t, 2.0, subs[0].Elapsed, 1e-9)
}

func TestAggregator_ReturnsConsistencyError_When_NoSubtestActive(t *testing.T) {
	t.Parallel()

	a := New(&report.Recorder{})
	feed(t, a, caseEv("1", event.StatusRunning, 0))

	err := a.Handle(subEv("1", "sub1", event.StatusPassed, 1.0))
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, reasonNoActive, ce.Reason)
	assert.Empty(t, ce.Active)
}

func TestAggregator_ReturnsConsistencyError_When_CaseUnknown(t *testing.T) {
	t.Parallel()

	a := New(&report.Recorder{})
	err := a.Handle(subEv("ghost", "sub1", event.StatusRunning, 1.0))
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, reasonNotRunning, ce.Reason)
}

func TestAggregator_RejectsSubtestEvents_When_CaseAlreadyCompleted(t *testing.T) {
	t.Parallel()

	a := New(&report.Recorder{})
	feed(t, a,
		caseEv("1", event.StatusRunning, 0),
		caseEv("1", event.StatusPassed, 1.0),
	)

	var ce *ConsistencyError
	require.ErrorAs(t, a.Handle(subEv("1", "late", event.StatusRunning, 2.0)), &ce)
}

func TestAggregator_InitializesOnce_When_CaseStartsAndCompletes(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a, caseEv("1", event.StatusRunning, 0))
	assert.Equal(t, 1, a.Pending())
	feed(t, a, caseEv("1", event.StatusRunning, 0.5))
	assert.Equal(t, 1, a.Pending(), "a repeated running event must not add a runtime")
	feed(t, a, caseEv("1", event.StatusPassed, 2.0))
	assert.Zero(t, a.Pending())

	var started int
	for _, c := range rec.Calls() {
		if c.Hook == "case_started" {
			started++
			assert.Equal(t, "S.C1", c.Case.FullName())
		}
	}
	assert.Equal(t, 3, started, "sink init hook runs on every running and completing event")

	cases := rec.CaseResults()
	require.Len(t, cases, 1)
	// The first running event fixes the start boundary.
	assert.InDelta(t, 2.0, cases[0].Elapsed, 1e-9)
}

func TestAggregator_CreatesRuntimeLazily_When_CaseCompletesWithoutRunning(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a, event.CaseEvent{
		ID: "env-failed", SuiteFullName: "S", Name: "C", Status: event.StatusFailed,
		Elapsed: 0, Message: "environment failed",
	})

	cases := rec.CaseResults()
	require.Len(t, cases, 1)
	assert.Equal(t, event.StatusFailed, cases[0].Status)
	assert.Equal(t, "environment failed", cases[0].Message)
	assert.Zero(t, a.Pending())
}

func TestAggregator_CompletesImmediately_When_CaseSkipped(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a, event.CaseEvent{ID: "1", SuiteFullName: "S", Name: "C", Status: event.StatusSkipped, Elapsed: 0, Message: "no env"})

	cases := rec.CaseResults()
	require.Len(t, cases, 1)
	assert.Equal(t, event.StatusSkipped, cases[0].Status)
	assert.Zero(t, cases[0].Elapsed)
}

func TestAggregator_IgnoresNonLifecycleStatuses(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a,
		caseEv("1", event.StatusQueued, 0),
		caseEv("1", event.StatusAssigned, 0),
		event.RunEvent{Status: event.RunRunning},
	)
	assert.Empty(t, rec.Calls())
	assert.Zero(t, a.Pending())

	feed(t, a, caseEv("1", event.StatusRunning, 0), subEv("1", "s", event.StatusQueued, 1))
	assert.Empty(t, rec.SubResults())
}

func TestAggregator_ForwardsRunEvents(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)
	feed(t, a,
		event.RunEvent{Status: event.RunInitializing, RunName: "nightly"},
		caseEv("1", event.StatusRunning, 0),
		event.RunEvent{Status: event.RunFailed, Elapsed: 12.5},
	)

	calls := rec.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "run_started", calls[0].Hook)
	assert.Equal(t, "nightly", calls[0].RunName)
	last := calls[len(calls)-1]
	assert.Equal(t, "run_completed", last.Hook)
	assert.InDelta(t, 12.5, last.Elapsed, 1e-9)
	assert.Equal(t, 1, a.Pending())
}

type failingSink struct {
	report.Recorder
	failSub   bool
	failStart bool
}

func (f *failingSink) CaseStarted(info report.CaseInfo) error {
	if f.failStart {
		return errors.New("case rejected")
	}
	return f.Recorder.CaseStarted(info)
}

func (f *failingSink) SubtestResult(r report.SubResult) error {
	if f.failSub {
		return errors.New("disk full")
	}
	return f.Recorder.SubtestResult(r)
}

func TestAggregator_StillReportsCase_When_SinkFailsOnClosedSubtest(t *testing.T) {
	t.Parallel()

	sink := &failingSink{failSub: true}
	a := New(sink)
	feed(t, a, caseEv("1", event.StatusRunning, 0), subEv("1", "s", event.StatusRunning, 1))

	err := a.Handle(caseEv("1", event.StatusPassed, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Len(t, sink.CaseResults(), 1)
	assert.InDelta(t, 1.0, sink.CaseResults()[0].Elapsed, 1e-9)
	assert.Zero(t, a.Pending())
}

func TestAggregator_DeliversResultsToOtherSinks_When_OneRejectsCaseStarted(t *testing.T) {
	t.Parallel()

	bad := &failingSink{failStart: true}
	good := &report.Recorder{}
	a := New(report.Multi(bad, good))

	err := a.Handle(caseEv("1", event.StatusRunning, 0))
	require.ErrorContains(t, err, "case rejected")
	require.NoError(t, a.Handle(subEv("1", "s", event.StatusRunning, 1)))
	require.NoError(t, a.Handle(subEv("1", "s", event.StatusPassed, 2)))

	err = a.Handle(caseEv("1", event.StatusPassed, 3))
	require.ErrorContains(t, err, "case rejected")

	require.Len(t, good.SubResults(), 1)
	require.Len(t, good.CaseResults(), 1)
	assert.InDelta(t, 2.0, good.CaseResults()[0].Elapsed, 1e-9)
	assert.Zero(t, a.Pending())
}

// randomCase builds a well-formed event sequence for one case: explicit and
// implicit sub-test closures mixed, elapsed strictly increasing.
func randomCase(r *rand.Rand, id string) []event.Event {
	clock := r.Float64()
	tick := func() float64 {
		clock += r.Float64()*2 + 0.001
		return clock
	}
	events := []event.Event{caseEv(id, event.StatusRunning, clock)}
	n := r.Intn(6)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("sub%d", i)
		events = append(events, subEv(id, name, event.StatusRunning, tick()))
		if r.Intn(2) == 0 {
			events = append(events, subEv(id, name, event.StatusPassed, tick()))
		}
	}
	events = append(events, caseEv(id, event.StatusPassed, tick()))
	return events
}

func TestAggregator_SubtestTimeNeverExceedsCaseTime(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		rec := &report.Recorder{}
		a := New(rec)
		events := randomCase(r, "x")
		feed(t, a, events...)

		final := events[len(events)-1].(event.CaseEvent).Elapsed
		var sum float64
		for _, s := range rec.SubResults() {
			assert.GreaterOrEqual(t, s.Elapsed, 0.0)
			sum += s.Elapsed
		}
		cases := rec.CaseResults()
		require.Len(t, cases, 1)
		assert.LessOrEqual(t, sum, final+1e-9)
		assert.GreaterOrEqual(t, cases[0].Elapsed, -1e-9)
		assert.InDelta(t, final-sum, cases[0].Elapsed, 1e-9)
	}
}

func TestAggregator_HandlesCasesConcurrently(t *testing.T) {
	t.Parallel()

	rec := &report.Recorder{}
	a := New(rec)

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w)))
			for c := 0; c < perWorker; c++ {
				for _, e := range randomCase(r, fmt.Sprintf("w%d-c%d", w, c)) {
					if err := a.Handle(e); err != nil {
						errs <- err
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, rec.CaseResults(), workers*perWorker)
	assert.Zero(t, a.Pending())
}
