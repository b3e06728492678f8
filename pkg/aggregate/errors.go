package aggregate

import "fmt"

// ConsistencyError reports a sub-test event that does not fit the state of
// its case: a completion naming a sub-test other than the active one, a
// completion with none active, or a sub-test event for a case that is not
// running. The case's state is left unchanged.
type ConsistencyError struct {
	ID     string
	Active string // active sub-test name, empty if none
	Got    string // sub-test named by the event
	Reason string
}

func (e *ConsistencyError) Error() string {
	if e.Active != "" {
		return fmt.Sprintf("case %s: %s (active %q, got %q)", e.ID, e.Reason, e.Active, e.Got)
	}
	return fmt.Sprintf("case %s: %s (got %q)", e.ID, e.Reason, e.Got)
}

const (
	reasonNotRunning = "case not running"
	reasonNoActive   = "completed sub-test with no active sub-test"
	reasonMismatch   = "completed sub-test is not the active sub-test"
)
