package domain

import (
	"fmt"
	"net/http"
)

// NetworkError reports a transport failure or a non-success response from an
// upstream API. StatusCode is zero for transport failures.
type NetworkError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Source, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request could succeed.
func (e *NetworkError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// DataShapeError reports an upstream payload that is missing or mistypes a
// field the adapters rely on.
type DataShapeError struct {
	Source string
	Field  string
	Reason string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("%s payload: field %q: %s", e.Source, e.Field, e.Reason)
}
