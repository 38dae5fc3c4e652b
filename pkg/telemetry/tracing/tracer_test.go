package tracing

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/themis/pkg/config"
)

// TestNew_Disabled verifies that a disabled config yields a usable noop
// tracer.
func TestNew_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tracer.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}

	ctx, span := tracer.Start(context.Background(), "execute")
	if span == nil {
		t.Fatal("Start returned nil span")
	}
	span.End()

	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID on noop span = %q, want empty", got)
	}

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on disabled tracer: %v", err)
	}
}

// TestNew_NilConfig verifies that a nil config is rejected.
func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

// TestSetError tolerates a nil error and a noop span.
func TestSetError(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, span := tracer.Start(context.Background(), "execute")
	defer span.End()

	SetError(span, nil)
	SetError(span, errors.New("evaluation failed"))
}
