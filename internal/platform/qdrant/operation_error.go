package qdrant

import "fmt"

// OperationErrorCode classifies a failed store call so callers can tell a
// bad request apart from a transport or server failure without parsing the
// message.
type OperationErrorCode string

const (
	OperationErrorValidation        OperationErrorCode = "validation_failed"
	OperationErrorUnsupportedFilter OperationErrorCode = "unsupported_filter"
	OperationErrorEncodeFailed      OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed      OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed   OperationErrorCode = "transport_failed"
	OperationErrorTimeout           OperationErrorCode = "timeout"
	OperationErrorQueryFailed       OperationErrorCode = "query_failed"
)

// OperationError is the error type every exported store method returns on
// failure. StatusCode is zero unless qdrant answered with a non-2xx status.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant operation failed"
	}
	detail := ""
	switch {
	case e.Message != "":
		detail = ": " + e.Message
	case e.Cause != nil:
		detail = ": " + e.Cause.Error()
	}
	return fmt.Sprintf("qdrant operation failed (op=%s code=%s status=%d)%s",
		e.Operation, e.Code, e.StatusCode, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}
