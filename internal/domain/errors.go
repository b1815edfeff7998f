package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ValidationError rejects malformed input to a tracking operation.
// No partial write happens when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

// ErrValidation is the sentinel error for malformed input.
var ErrValidation = ValidationError{}

// ProviderUnavailableError marks a failed provider fetch. The affected
// library skips the current cycle and retries on the next one.
type ProviderUnavailableError struct {
	Library string
	Err     error
}

func (e ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable for library %s: %v", e.Library, e.Err)
}

func (e ProviderUnavailableError) Unwrap() error { return e.Err }

func (e ProviderUnavailableError) Is(target error) bool {
	_, ok := target.(ProviderUnavailableError)
	if ok {
		return true
	}
	_, ok = target.(*ProviderUnavailableError)
	return ok
}

// ErrProviderUnavailable is the sentinel error for provider fetch
// failures.
var ErrProviderUnavailable = ProviderUnavailableError{}
