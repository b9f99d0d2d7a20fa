package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources. An empty
	// vector store on first query maps here and is treated as "no match".
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExternalServiceError wraps a failure of an upstream provider (embedding
// model, LLM, object store). Recoverable: the tag pipeline degrades to an
// empty tag set rather than failing the request.
type ExternalServiceError struct {
	Service string
	Cause   error
}

func (e *ExternalServiceError) Error() string {
	if e == nil {
		return "external service failed"
	}
	if e.Cause != nil {
		return fmt.Sprintf("external service %s failed: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("external service %s failed", e.Service)
}

func (e *ExternalServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func External(service string, cause error) error {
	return &ExternalServiceError{Service: service, Cause: cause}
}

func IsExternal(err error) bool {
	var ese *ExternalServiceError
	return errors.As(err, &ese)
}
