package domain

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeInternal         ErrorCode = "INTERNAL"
)

// Error is the call error carried across the capability boundary. Retryable
// marks transient failures eligible for backoff retry; everything else
// surfaces to the caller on the first attempt.
type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
	Meta      map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:      code,
		Op:        op,
		Message:   msg,
		Cause:     cause,
		Retryable: codeRetryable(code),
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:      existing.Code,
			Op:        op,
			Message:   existing.Message,
			Cause:     existing.Cause,
			Retryable: existing.Retryable,
			Meta:      existing.Meta,
		}
	}
	return E(code, op, "", err)
}

// codeRetryable is the default classification for freshly built errors.
// Connection loss and deadline expiry are transient; everything else is not.
func codeRetryable(code ErrorCode) bool {
	switch code {
	case CodeConnectionFailed, CodeTimeout, CodeUnavailable:
		return true
	default:
		return false
	}
}

// CodeFrom extracts the error code, mapping sentinels and context errors
// for callers that only hold a plain error.
func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, true
	case errors.Is(err, context.Canceled):
		return CodeCanceled, true
	case errors.Is(err, ErrServerNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrJobNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrJobExists), errors.Is(err, ErrJobTerminal):
		return CodeConflict, true
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrNotConnected):
		return CodeUnavailable, true
	default:
		return "", false
	}
}

// IsRetryable reports whether err may be retried under a RetryPolicy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code, ok := CodeFrom(err); ok {
		return codeRetryable(code)
	}
	return false
}

var (
	ErrServerNotFound   = errors.New("capability server not found")
	ErrNotConnected     = errors.New("client is not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobExists        = errors.New("job already exists")
	ErrJobTerminal      = errors.New("job is in a terminal state")
)
