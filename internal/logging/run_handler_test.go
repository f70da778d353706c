package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRunIDHandler(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	handler := newRunIDHandler(base, "20260823-101500")

	logger := slog.New(handler)
	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"20260823-101500"`) {
		t.Errorf("expected run_id in output, got: %s", output)
	}
}

func TestRunIDHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	handler := newRunIDHandler(base, "run-abc")

	logger := slog.New(handler).With("extra", "value")
	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run-abc"`) {
		t.Errorf("expected run_id in output, got: %s", output)
	}
	if !strings.Contains(output, `"extra":"value"`) {
		t.Errorf("expected extra attr in output, got: %s", output)
	}
}

func TestRunIDHandler_NilBase(t *testing.T) {
	handler := newRunIDHandler(nil, "run-123")
	if _, ok := handler.(nopHandler); !ok {
		t.Errorf("expected discard handler when base is nil, got: %T", handler)
	}
}

func TestWithRunIDEmptyIsPassthrough(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if got := WithRunID(logger, ""); got != logger {
		t.Error("expected empty run id to return the base logger")
	}
}
