// Package report defines the contract between the lifecycle aggregator and
// the sinks that render its results.
package report

import (
	"time"

	"github.com/dkoosis/tally/pkg/event"
)

// Sink receives aggregated results.
//
// Hooks for one case are called in event order and never concurrently with
// each other. Hooks for different cases may be called from different
// goroutines, so implementations guard their own state.
//
// Construction plays the role of initialization: a sink acquires whatever
// it writes to (files, handles) in its constructor and releases it in
// Finalize, which runs once after RunCompleted.
type Sink interface {
	// RunStarted records run-level metadata.
	RunStarted(runName string) error
	// RunCompleted is the last result hook of a run. Totals must be complete
	// afterwards; no case or sub-test hooks follow it.
	RunCompleted(totalElapsed float64) error
	// CaseStarted is called when a case starts and again when it completes.
	// It must be idempotent.
	CaseStarted(info CaseInfo) error
	// CaseResult delivers the final result of a test case.
	CaseResult(r CaseResult) error
	// SubtestResult delivers the result of one sub-test of a case.
	SubtestResult(r SubResult) error
	// Finalize flushes and releases resources. Calling it again is a no-op.
	Finalize() error
}

// CaseInfo identifies a case the first time a sink sees it.
type CaseInfo struct {
	ID            string
	SuiteFullName string
	Name          string
	Time          time.Time
}

// FullName returns "suite.name".
func (c CaseInfo) FullName() string { return event.FullName(c.SuiteFullName, c.Name) }

// CaseResult is the outcome of a test case. Elapsed excludes the time
// already attributed to its sub-tests.
type CaseResult struct {
	ID            string
	SuiteFullName string
	Name          string
	ClassName     string
	Status        event.Status
	Message       string
	Stacktrace    string
	Elapsed       float64
}

// FullName returns "suite.name".
func (r CaseResult) FullName() string { return event.FullName(r.SuiteFullName, r.Name) }

// SubResult is the outcome of one sub-test.
type SubResult struct {
	ID            string
	Name          string
	SuiteFullName string
	CaseFullName  string
	Status        event.Status
	Message       string
	Stacktrace    string
	Elapsed       float64
}
