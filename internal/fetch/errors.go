package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrBodyTooLarge is returned when a response exceeds the size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// FetchError reports a failed upstream retrieval. StatusCode is zero when no
// HTTP response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: upstream returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.code)
}
