package logging

import (
	"errors"
	"testing"
)

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("ocr.fetch", "req-1", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorFormatsAndUnwraps(t *testing.T) {
	base := errors.New("connection refused")
	err := NewOperationError("ocr.fetch", "req-1", base)

	if got := err.Error(); got != "ocr.fetch (request_id=req-1): connection refused" {
		t.Fatalf("unexpected message: %s", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to find the wrapped error")
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "ocr.fetch" {
		t.Fatalf("expected OperationError with operation ocr.fetch, got %v", err)
	}

	noID := NewOperationError("ocr.extract", "", base)
	if got := noID.Error(); got != "ocr.extract: connection refused" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug", true)
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	_ = logger.Sync()
}
