package platform

import "fmt"

// ParseError means a successful response did not carry valid JSON, i.e. the
// API and this client disagree about the contract.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
