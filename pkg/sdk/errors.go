package slidedex

import (
	"errors"
	"fmt"

	"github.com/pathology-bites/slidedex/internal/domain"
)

// ErrNetwork wraps transport failures: the request never produced an HTTP response.
var ErrNetwork = errors.New("slidedex: network failure")

// ErrInvalidRequest is returned for requests rejected client-side before any
// network call, such as an empty id list. Use errors.Is() to check.
var ErrInvalidRequest = domain.ErrInvalidRequest

// StatusError is a non-2xx response. Message and Details come from the
// server's {error, details} body when present.
type StatusError struct {
	Code    int
	Message string
	Details string
}

func (e *StatusError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("slidedex: HTTP %d: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("slidedex: HTTP %d: %s", e.Code, e.Message)
}
