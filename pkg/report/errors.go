package report

import "fmt"

// NotStartedError is returned by a sink asked for a result on a suite or
// case it never initialized. It signals a producer contract violation.
type NotStartedError struct {
	Kind string // "suite" or "case"
	Name string
}

func (e *NotStartedError) Error() string {
	return fmt.Sprintf("%s %s not started", e.Kind, e.Name)
}

// SuiteNotStarted returns a NotStartedError for a suite.
func SuiteNotStarted(name string) *NotStartedError {
	return &NotStartedError{Kind: "suite", Name: name}
}

// CaseNotStarted returns a NotStartedError for a case.
func CaseNotStarted(name string) *NotStartedError {
	return &NotStartedError{Kind: "case", Name: name}
}
