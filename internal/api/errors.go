package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/skyfeed/skyfeed/internal/feed"
)

// Error is an XRPC error response
type Error struct {
	Status  int    `json:"-"`
	Name    string `json:"error"`
	Message string `json:"message"`
}

// NewError creates a new API error
func NewError(status int, name, message string) *Error {
	return &Error{
		Status:  status,
		Name:    name,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d %s: %s", e.Status, e.Name, e.Message)
}

// Standard XRPC error names
const (
	ErrInvalidRequest = "InvalidRequest"
	ErrMethodNotFound = "MethodNotImplemented"
	ErrInternalError  = "InternalServerError"
	ErrUnknownFeed    = "UnknownFeed"
)

// toError maps service errors onto XRPC errors
func toError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, feed.ErrFeedNotFound):
		return NewError(http.StatusBadRequest, ErrUnknownFeed, "Unknown feed")
	case errors.Is(err, feed.ErrInvalidFeedURI):
		return NewError(http.StatusBadRequest, ErrInvalidRequest, "Invalid feed uri")
	case errors.Is(err, feed.ErrInvalidCursor):
		return NewError(http.StatusBadRequest, ErrInvalidRequest, "Invalid cursor")
	default:
		return NewError(http.StatusInternalServerError, ErrInternalError, "Internal server error")
	}
}
