package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedPayload is returned when a response body cannot be
	// decoded or lacks a required field.
	ErrMalformedPayload = errors.New("malformed backend payload")

	// ErrRejected is returned when the backend answers 2xx with
	// success=false.
	ErrRejected = errors.New("backend rejected request")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// IsStatus reports whether err (or any error in its chain) is a StatusError
// with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsForbidden reports whether the backend refused the identity.
func IsForbidden(err error) bool {
	return IsStatus(err, http.StatusForbidden)
}
