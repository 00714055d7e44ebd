package stylist

import "fmt"

// StatusError reports a reachable backend that answered with a non-success
// status. Body carries the response text for user-facing messages.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// DecodeError reports a success status whose body could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid backend response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
