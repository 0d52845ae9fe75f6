package authz

import "errors"

// DeniedError is returned by workflows when a guard predicate denies the
// operation. Handlers map it to a 403 response.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return e.Reason
}

// Check converts a Decision into an error, nil when allowed
func Check(d Decision) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// IsDenied reports whether the error chain carries a guard denial
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}
