// Package event defines the test-lifecycle events consumed by the aggregator.
package event

import "time"

// Status is the lifecycle state of a test case or sub-test.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusAssigned  Status = "assigned"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusAttempted Status = "attempted"
)

// IsCompleted reports whether s is terminal.
func (s Status) IsCompleted() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped, StatusAttempted:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusAssigned, StatusRunning,
		StatusPassed, StatusFailed, StatusSkipped, StatusAttempted:
		return true
	default:
		return false
	}
}

// RunStatus is the lifecycle state of a whole test run.
type RunStatus string

const (
	RunInitializing RunStatus = "initializing"
	RunRunning      RunStatus = "running"
	RunSuccess      RunStatus = "success"
	RunFailed       RunStatus = "failed"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunInitializing, RunRunning, RunSuccess, RunFailed:
		return true
	default:
		return false
	}
}

// Event is one of RunEvent, CaseEvent or SubEvent.
type Event interface {
	isEvent()
}

// RunEvent reports a transition of the whole run.
// Elapsed is seconds since the run started.
type RunEvent struct {
	Status  RunStatus
	RunName string
	Elapsed float64
	Time    time.Time
}

// CaseEvent reports a transition of one test-case execution, identified by ID.
type CaseEvent struct {
	ID            string
	SuiteFullName string
	Name          string
	Status        Status
	Elapsed       float64
	Message       string
	Stacktrace    string
	Time          time.Time
}

// SubEvent reports a transition of a sub-test inside the case with the same ID.
type SubEvent struct {
	ID         string
	Name       string
	Status     Status
	Elapsed    float64
	Message    string
	Stacktrace string
	Time       time.Time
}

func (RunEvent) isEvent()  {}
func (CaseEvent) isEvent() {}
func (SubEvent) isEvent()  {}

// IsCompleted reports whether the case reached a terminal status.
func (e CaseEvent) IsCompleted() bool { return e.Status.IsCompleted() }

// FullName returns "suite.name".
func (e CaseEvent) FullName() string { return FullName(e.SuiteFullName, e.Name) }

// IsCompleted reports whether the sub-test reached a terminal status.
func (e SubEvent) IsCompleted() bool { return e.Status.IsCompleted() }

// FullName joins a suite full name and a case name.
func FullName(suite, name string) string {
	return suite + "." + name
}
