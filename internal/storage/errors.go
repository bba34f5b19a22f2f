package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel wrapped by every lookup failure. Handlers match
// it with errors.Is to map storage misses onto 404 responses.
var ErrNotFound = errors.New("not found")

// NotFoundError reports which resource and key failed to resolve.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// ValidationError reports input that violates a catalog rule: duplicate or
// reserved usernames, duplicate reviews, out-of-range scores, future years,
// malformed slugs. Field names the offending input field when known.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
