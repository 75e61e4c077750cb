package pagination

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/photofeed/pkg/client"
)

// ErrStaleGeneration marks a completion issued before the last CancelAll.
// It is only logged and counted; observers never see it.
var ErrStaleGeneration = errors.New("stale generation")

// ErrorKind classifies a failed page fetch.
type ErrorKind string

const (
	// KindNetwork covers timeouts, connectivity and cancellation.
	KindNetwork ErrorKind = "network"

	// KindServer covers non-2xx responses.
	KindServer ErrorKind = "server"

	// KindDecode covers responses of the wrong shape.
	KindDecode ErrorKind = "decode"
)

// Classify maps a fetch error onto an ErrorKind. Errors that did not come
// from a response are network failures.
func Classify(err error) ErrorKind {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return KindNetwork
	}
	switch apiErr.ErrorClass {
	case client.ErrorClassDecode:
		return KindDecode
	case client.ErrorClassNetwork:
		return KindNetwork
	default:
		return KindServer
	}
}

// FetchError is the error carried by a PageFailed event.
type FetchError struct {
	Page       int
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func newFetchError(page int, err error) *FetchError {
	fe := &FetchError{Page: page, Kind: Classify(err), Err: err}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fe.StatusCode = apiErr.StatusCode
	}
	return fe
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("page %d: %s failure (status %d): %v", e.Page, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("page %d: %s failure: %v", e.Page, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
