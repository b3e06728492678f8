package report

import "errors"

// multi fans every hook out to a list of sinks.
type multi struct {
	sinks []Sink
}

// Multi returns a Sink that forwards to each of sinks in order. A failing
// sink does not stop the others; their errors are joined.
func Multi(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multi{sinks: sinks}
}

func (m *multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multi) RunStarted(runName string) error {
	return m.each(func(s Sink) error { return s.RunStarted(runName) })
}

func (m *multi) RunCompleted(totalElapsed float64) error {
	return m.each(func(s Sink) error { return s.RunCompleted(totalElapsed) })
}

func (m *multi) CaseStarted(info CaseInfo) error {
	return m.each(func(s Sink) error { return s.CaseStarted(info) })
}

func (m *multi) CaseResult(r CaseResult) error {
	return m.each(func(s Sink) error { return s.CaseResult(r) })
}

func (m *multi) SubtestResult(r SubResult) error {
	return m.each(func(s Sink) error { return s.SubtestResult(r) })
}

func (m *multi) Finalize() error {
	return m.each(func(s Sink) error { return s.Finalize() })
}
