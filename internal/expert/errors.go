package expert

import "fmt"

// UnsupportedTaskError reports that a backend does not recognize the
// requested task. Typed so callers can branch on it without pattern
// matching.
type UnsupportedTaskError struct {
	Expert string
	Task   Task
}

func (e *UnsupportedTaskError) Error() string {
	return fmt.Sprintf("unsupported task %q for expert %q", string(e.Task), e.Expert)
}

// InvocationError wraps a failure from the backend itself, as distinct
// from routing failures: routing succeeded but execution did not.
type InvocationError struct {
	Expert string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("expert %q invocation failed: %v", e.Expert, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
