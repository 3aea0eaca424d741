package bazaar

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for any fetch issued after Close.
var ErrClosed = errors.New("bazaar: client closed")

// HTTPError reports a non-2xx upstream response that the rate-limit retry did
// not recover. A 429 that fails its single retry surfaces here with status 429.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream HTTP %d: %s", e.Status, e.URL)
}

// DataError reports an upstream payload whose shape could not be decoded.
type DataError struct {
	URL string
	Err error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("malformed upstream payload from %s: %v", e.URL, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }
