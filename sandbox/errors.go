package sandbox

import "errors"

// Sentinel errors for isolated execution.
var (
	// Resolution errors
	ErrResolveFailed      = errors.New("sandbox: failed to resolve execution context")
	ErrEntryPointNotFound = errors.New("sandbox: entry point not found")
	ErrFunctionNotFound   = errors.New("sandbox: preview function not found")

	// Worker process errors
	ErrWorkerStart       = errors.New("sandbox: worker failed to start")
	ErrWorkerUnavailable = errors.New("sandbox: worker unavailable")

	// Protocol errors are contract violations between caller and runtime,
	// not per-preview failures.
	ErrProtocol = errors.New("sandbox: protocol violation")

	// Lifecycle errors
	ErrResolverClosed = errors.New("sandbox: resolver is closed")
	ErrUnitClosed     = errors.New("sandbox: execution unit is closed")
)

// InvocationError carries the error text produced inside the isolation
// boundary: the preview function failed, panicked or returned an unexpected
// result. The message is kept verbatim.
type InvocationError struct {
	Message string
}

func (e *InvocationError) Error() string {
	return e.Message
}

// IsInvocationError reports whether err is a per-preview invocation failure.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}
