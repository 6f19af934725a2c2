package memberful

import (
	"fmt"
)

// ParseError means a request could not be constructed from what the caller gave.
type ParseError struct {
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("memberful: parse: %s", e.Message)
}

// ConsistencyError means Memberful answered in a way that contradicts itself,
// like declaring different total counts across pages of one query. It is never
// retried, an operator has to look at it.
type ConsistencyError struct {
	Message string
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("memberful: inconsistent response: %s", e.Message)
}

// TransportError wraps a failed exchange with Memberful: network failures,
// unexpected statuses, GraphQL errors, or a login that did not go through.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("memberful: %s: %s", e.Op, e.Err.Error())
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// DownloadError means a CSV export never became ready or could not be read.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memberful: failed to download the CSV export %s: %s", e.URL, e.Err.Error())
	}
	return fmt.Sprintf("memberful: failed to download the CSV export %s after %d attempts", e.URL, e.Attempts)
}

func (e DownloadError) Unwrap() error {
	return e.Err
}
