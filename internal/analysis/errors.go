package analysis

import "errors"

var (
	// ErrInvalidRequest is returned when a request is rejected before any run starts
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrTaskNotFound is returned when no task matches the lookup
	ErrTaskNotFound = errors.New("analysis task not found")
	// ErrSuperseded is returned for writes from a run that a newer run of the
	// same project has replaced
	ErrSuperseded = errors.New("superseded by a newer analysis run")
	// ErrReplaced ends a background run whose project results were rewritten
	// by a synchronous run. Its task completes rather than fails.
	ErrReplaced = errors.New("results replaced by a synchronous analysis run")
	// ErrShuttingDown is returned when a run is requested after Shutdown
	ErrShuttingDown = errors.New("analysis service is shutting down")
)
