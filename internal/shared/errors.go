package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthExpired      = fmt.Errorf("remote credentials expired")

	// Remote API errors
	ErrRemoteAPI          = fmt.Errorf("remote API request failed")
	ErrRateLimited        = fmt.Errorf("remote API rate limited")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Job, undo and schedule errors
	ErrAdmission = fmt.Errorf("job not admitted")
	ErrConflict  = fmt.Errorf("conflict")
	ErrNotFound  = fmt.Errorf("not found")
	ErrTerminal  = fmt.Errorf("job already finished")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
