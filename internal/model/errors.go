package model

import (
	"errors"
)

// ErrorCode categorizes search failures for callers. Every failure surfaced by
// the pipeline carries exactly one code so the CLI and serve mode can tell
// "no match" from "service down" from "incomplete results".
type ErrorCode string

const (
	CodeGeocodeNotFound     ErrorCode = "GEOCODE_NOT_FOUND"
	CodeGeocodeServiceError ErrorCode = "GEOCODE_SERVICE_ERROR"
	CodeCommuneFetchError   ErrorCode = "COMMUNE_FETCH_ERROR"
	CodeSearchServiceError  ErrorCode = "SEARCH_SERVICE_ERROR"
	CodeRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodePartialResult       ErrorCode = "PARTIAL_RESULT"
	CodeMalformedResponse   ErrorCode = "MALFORMED_RESPONSE"
	CodeNeedsConfirmation   ErrorCode = "NEEDS_CONFIRMATION"
	CodeUnknown             ErrorCode = "UNKNOWN"
)

// CodedError attaches an ErrorCode to an underlying error.
type CodedError struct {
	Code ErrorCode
	Err  error
}

func (e *CodedError) Error() string {
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// Coded wraps err with the given code. Returns nil for a nil err.
func Coded(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Err: err}
}

// CodeOf returns the ErrorCode carried by err, or CodeUnknown when none is
// attached. The outermost code wins when several are nested.
func CodeOf(err error) ErrorCode {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var ce *CodedError
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Code == code {
			return true
		}
		err = ce.Err
	}
	return false
}
