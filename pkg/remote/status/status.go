// Copyright © 2018 One Concern

// Package status declares error constants returned by the remote
// repository protocol adapter.
package status

import (
	"fmt"
	"net/http"

	"github.com/oneconcern/otarepo/pkg/errors"
)

var (
	// ErrUnavailable indicates that the remote repository could not be reached
	ErrUnavailable = errors.New("remote repository unavailable")

	// ErrUnreadable indicates a response which could not be deserialized
	ErrUnreadable = errors.New("unreadable remote response")

	// ErrRejected indicates that the remote repository answered with an error status
	ErrRejected = errors.New("remote request rejected")

	// ErrConflict refines ErrRejected: the request conflicts with the state of the item, e.g. it is locked by someone else
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized refines ErrRejected: credentials are missing, invalid or insufficient
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound refines ErrRejected: the requested item or namespace does not exist
	ErrNotFound = errors.New("not found")

	// ErrTooLarge indicates a content exceeding the maximum upload size
	ErrTooLarge = errors.New("content too large")

	// ErrInvalidRequest indicates a request which could not be built
	ErrInvalidRequest = errors.New("invalid remote request")
)

// ResponseError carries the error status and message returned by the remote repository
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// FromResponse maps an error status to the matching sentinel error.
//
// The returned error matches ErrRejected, and a refined sentinel for well-known statuses.
func FromResponse(statusCode int, message string) error {
	rejected := ErrRejected.Wrap(&ResponseError{StatusCode: statusCode, Message: message})
	switch statusCode {
	case http.StatusConflict:
		return ErrConflict.Wrap(rejected)
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized.Wrap(rejected)
	case http.StatusNotFound:
		return ErrNotFound.Wrap(rejected)
	default:
		return rejected
	}
}
