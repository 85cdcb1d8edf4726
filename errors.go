package beacon

import "github.com/beaconhq/beacon-go/internal/clienterr"

// ErrorKind classifies an error surfaced by the client, mirroring the
// failure taxonomy a caller's on_error callback needs to branch on.
type ErrorKind = clienterr.Kind

// Error is the error type surfaced across the client's public surface. Kind
// lets an on_error callback branch on the failure class without string
// matching; Err carries the underlying cause when there is one.
type Error = clienterr.Error

const (
	// ErrInvalidArgument is raised synchronously during construction:
	// a missing API key, control characters in the key, or an endpoint
	// EndpointValidator rejects.
	ErrInvalidArgument = clienterr.InvalidArgument

	// ErrRetryableTransport is a network/timeout failure while sending a
	// batch; it feeds the scheduler's retry+backoff path.
	ErrRetryableTransport = clienterr.RetryableTransport

	// ErrRetryableServer is an HTTP 429/5xx response; same retry path as
	// ErrRetryableTransport.
	ErrRetryableServer = clienterr.RetryableServer

	// ErrNonRetryableServer is any other non-2xx HTTP status; it triggers
	// direct disk persistence of the batch, no retry.
	ErrNonRetryableServer = clienterr.NonRetryableServer

	// ErrOversized means an event exceeded the per-event byte ceiling even
	// after stripping metadata; the event is dropped.
	ErrOversized = clienterr.Oversized

	// ErrBufferFull means the in-memory buffer was at capacity when an
	// event was pushed; the event is dropped.
	ErrBufferFull = clienterr.BufferFull

	// ErrStorageFull means the overflow file was at its byte budget when a
	// batch needed to be persisted; the batch is dropped.
	ErrStorageFull = clienterr.StorageFull
)

// newError builds an *Error for the root package's own construction-time
// failures.
func newError(op string, kind ErrorKind, err error) *Error {
	return clienterr.New(op, kind, err)
}
