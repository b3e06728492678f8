package report

import "sync"

// Call is one hook invocation captured by a Recorder.
type Call struct {
	Hook    string // "run_started", "run_completed", "case_started", "case_result", "subtest_result", "finalize"
	RunName string
	Elapsed float64
	Case    CaseInfo
	Result  CaseResult
	Sub     SubResult
}

// Recorder is an in-memory Sink that keeps every call in arrival order.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CaseResults returns recorded case results in order.
func (r *Recorder) CaseResults() []CaseResult {
	var out []CaseResult
	for _, c := range r.Calls() {
		if c.Hook == "case_result" {
			out = append(out, c.Result)
		}
	}
	return out
}

// SubResults returns recorded sub-test results in order.
func (r *Recorder) SubResults() []SubResult {
	var out []SubResult
	for _, c := range r.Calls() {
		if c.Hook == "subtest_result" {
			out = append(out, c.Sub)
		}
	}
	return out
}

func (r *Recorder) add(c Call) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) RunStarted(runName string) error {
	return r.add(Call{Hook: "run_started", RunName: runName})
}

func (r *Recorder) RunCompleted(totalElapsed float64) error {
	return r.add(Call{Hook: "run_completed", Elapsed: totalElapsed})
}

func (r *Recorder) CaseStarted(info CaseInfo) error {
	return r.add(Call{Hook: "case_started", Case: info})
}

func (r *Recorder) CaseResult(res CaseResult) error {
	return r.add(Call{Hook: "case_result", Result: res, Elapsed: res.Elapsed})
}

func (r *Recorder) SubtestResult(res SubResult) error {
	return r.add(Call{Hook: "subtest_result", Sub: res, Elapsed: res.Elapsed})
}

func (r *Recorder) Finalize() error {
	return r.add(Call{Hook: "finalize"})
}
