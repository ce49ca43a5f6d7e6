package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable signals that the object store could not serve the dataset blob.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedDataset signals a dataset blob that is not a JSON array of slide records.
	ErrMalformedDataset = errors.New("malformed dataset")
	// ErrInvalidRequest signals a client-side input error (empty or oversized id list).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// InvalidRequestError wraps ErrInvalidRequest with a message safe to return to clients.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRequest.Error(), e.Message)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// NewInvalidRequest creates an invalid request error with a client-facing message.
func NewInvalidRequest(format string, args ...any) error {
	return &InvalidRequestError{Message: fmt.Sprintf(format, args...)}
}
