package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingSink rejects every hook.
type failingSink struct {
	Recorder
	err error
}

func (f *failingSink) CaseResult(res CaseResult) error {
	_ = f.Recorder.CaseResult(res)
	return f.err
}

func (f *failingSink) Finalize() error {
	_ = f.Recorder.Finalize()
	return f.err
}

func TestMulti_ReturnsSinkItself_When_OnlyOne(t *testing.T) {
	t.Parallel()

	r := &Recorder{}
	assert.Same(t, r, Multi(r))
}

func TestMulti_ForwardsToEverySink_When_OneFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	bad := &failingSink{err: boom}
	good := &Recorder{}
	m := Multi(bad, good)

	require.NoError(t, m.RunStarted("r"))
	require.NoError(t, m.CaseStarted(CaseInfo{ID: "1", SuiteFullName: "S", Name: "c"}))
	require.NoError(t, m.SubtestResult(SubResult{ID: "1", Name: "a", Status: "passed"}))
	err := m.CaseResult(CaseResult{ID: "1", SuiteFullName: "S", Name: "c", Status: "passed"})
	require.ErrorIs(t, err, boom)
	require.NoError(t, m.RunCompleted(3))
	require.ErrorIs(t, m.Finalize(), boom)

	want := []string{"run_started", "case_started", "subtest_result", "case_result", "run_completed", "finalize"}
	for _, s := range []*Recorder{&bad.Recorder, good} {
		var hooks []string
		for _, c := range s.Calls() {
			hooks = append(hooks, c.Hook)
		}
		assert.Equal(t, want, hooks)
	}
}

func TestNotStartedError_Message(t *testing.T) {
	t.Parallel()

	var err error = CaseNotStarted("S.c")
	assert.EqualError(t, err, "case S.c not started")
	assert.EqualError(t, SuiteNotStarted("S"), "suite S not started")

	var nse *NotStartedError
	require.ErrorAs(t, err, &nse)
	assert.Equal(t, "case", nse.Kind)
}
