package errors

import (
	"context"
	"errors"
	"fmt"
)

type ReportError struct {
	Code       string
	Message    string
	Cause      error
	ScenarioID string
}

func (e *ReportError) Error() string {
	prefix := e.Code
	if e.ScenarioID != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.ScenarioID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ReportError) Unwrap() error { return e.Cause }

// Is matches another *ReportError by code so sentinels can be compared with
// errors.Is.
func (e *ReportError) Is(target error) bool {
	t, ok := target.(*ReportError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.ScenarioID == "" || t.ScenarioID == e.ScenarioID)
}

const (
	ErrCodeMissingLogFile           = "MISSING_LOG_FILE"
	ErrCodeMalformedRecord          = "MALFORMED_RECORD"
	ErrCodeAggregationInconsistency = "AGGREGATION_INCONSISTENCY"
	ErrCodeInvalidConfig            = "INVALID_CONFIG"
	ErrCodeRenderFailed             = "RENDER_FAILED"
)

func ErrMissingLogFile(path string, cause error) *ReportError {
	return &ReportError{
		Code:    ErrCodeMissingLogFile,
		Message: fmt.Sprintf("log file not found: %s", path),
		Cause:   cause,
	}
}

func ErrMalformedRecord(line int, msg string) *ReportError {
	return &ReportError{
		Code:    ErrCodeMalformedRecord,
		Message: fmt.Sprintf("line %d: %s", line, msg),
	}
}

func ErrAggregationInconsistency(baselineID string) *ReportError {
	return &ReportError{
		Code:       ErrCodeAggregationInconsistency,
		Message:    "baseline scenario has no metrics",
		ScenarioID: baselineID,
	}
}

func ErrInvalidConfig(msg string, cause error) *ReportError {
	return &ReportError{
		Code:    ErrCodeInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

func ErrRenderFailed(msg string, cause error) *ReportError {
	return &ReportError{
		Code:    ErrCodeRenderFailed,
		Message: msg,
		Cause:   cause,
	}
}

// HasCode reports whether err wraps a *ReportError with the given code.
func HasCode(err error, code string) bool {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
