package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Task lifecycle errors
	ErrTaskNotFound  = fmt.Errorf("task not found")
	ErrUnknownKind   = fmt.Errorf("unknown task kind")
	ErrTaskTerminal  = fmt.Errorf("task already finished")
	ErrWorkerPanic   = fmt.Errorf("worker panicked")
	ErrStoreClosed   = fmt.Errorf("history store closed")
	ErrCorruptRecord = fmt.Errorf("corrupt history document")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrBadStatus          = fmt.Errorf("unexpected HTTP status")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
