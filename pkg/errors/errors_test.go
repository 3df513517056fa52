package errors_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
)

func TestReportErrorMessage(t *testing.T) {
	err := reporterrors.ErrMissingLogFile("/tmp/x.log", fs.ErrNotExist)
	err.ScenarioID = "scenario2"

	msg := err.Error()
	if !strings.HasPrefix(msg, "MISSING_LOG_FILE [scenario2]: ") {
		t.Fatalf("unexpected prefix: %q", msg)
	}
	if !strings.Contains(msg, "/tmp/x.log") {
		t.Fatalf("message missing path: %q", msg)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("expected cause to unwrap to fs.ErrNotExist")
	}
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("write charts: %w", reporterrors.ErrRenderFailed("mkdir", nil))
	if !reporterrors.HasCode(wrapped, reporterrors.ErrCodeRenderFailed) {
		t.Fatal("expected RENDER_FAILED through wrapping")
	}
	if reporterrors.HasCode(wrapped, reporterrors.ErrCodeInvalidConfig) {
		t.Fatal("unexpected INVALID_CONFIG match")
	}
	if reporterrors.HasCode(errors.New("plain"), reporterrors.ErrCodeRenderFailed) {
		t.Fatal("plain error should not carry a code")
	}
}

func TestReportErrorIsByCode(t *testing.T) {
	sentinel := &reporterrors.ReportError{Code: reporterrors.ErrCodeMissingLogFile}
	err := fmt.Errorf("parse: %w", reporterrors.ErrMissingLogFile("a.log", nil))
	if !errors.Is(err, sentinel) {
		t.Fatal("expected code match via errors.Is")
	}
	if errors.Is(err, &reporterrors.ReportError{Code: reporterrors.ErrCodeMalformedRecord}) {
		t.Fatal("different code must not match")
	}
}

func TestIsContextError(t *testing.T) {
	if !reporterrors.IsContextError(fmt.Errorf("x: %w", context.Canceled)) {
		t.Fatal("expected canceled to be a context error")
	}
	if reporterrors.IsContextError(errors.New("boom")) {
		t.Fatal("plain error is not a context error")
	}
}
