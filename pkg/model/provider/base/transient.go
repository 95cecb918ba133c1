package base

import "errors"

// TransientError wraps a provider failure that is safe to retry, e.g. rate
// limiting or a 5xx response.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient provider error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
