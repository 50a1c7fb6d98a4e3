package models

import (
	"errors"
	"fmt"
)

// Error codes used in logs, run status and internal error handling.
const (
	// ErrCodeNoCandidate means no locator in a candidate list matched in time.
	ErrCodeNoCandidate = "NO_CANDIDATE_MATCHED"

	// ErrCodeSessionClosed means the active page or its context has died.
	ErrCodeSessionClosed = "SESSION_CLOSED"

	ErrCodeFieldExtraction  = "FIELD_EXTRACTION_FAILED"
	ErrCodeValueUnavailable = "VALUE_UNAVAILABLE"
	ErrCodeRowFatal         = "ROW_FATAL"
	ErrCodeRunFatal         = "RUN_FATAL"

	// Driver-level codes.
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeSink         = "SINK_WRITE_FAILED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the outermost ScrapeError in err's chain, or "".
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether any ScrapeError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var se *ScrapeError
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}

// IsSessionClosed reports whether err signals a dead session.
func IsSessionClosed(err error) bool {
	return HasCode(err, ErrCodeSessionClosed)
}
