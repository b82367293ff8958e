package offload

import "errors"

var (
	// ErrClosed is returned when waiting on a proxy that has been closed.
	ErrClosed = errors.New("offload: proxy closed")

	// ErrUnsupported is returned for reads the proxy cannot serve
	// synchronously. Use Snapshot instead.
	ErrUnsupported = errors.New("offload: column views are not supported, use Snapshot")
)
