package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentAPI})
	logger.Info("hello", FieldSection, "generated")

	out := buf.String()
	if !strings.Contains(out, "component=api") || !strings.Contains(out, "section=generated") {
		t.Fatalf("unexpected output %q", out)
	}
	if logger.WithComponent(ComponentWorkflow).Component() != ComponentWorkflow {
		t.Fatal("WithComponent did not switch component")
	}
}

func TestWithComponentReplacesTag(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf}).With("request_id", "r1").WithComponent(ComponentHTTP)
	logger.Info("served")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=http") {
		t.Errorf("want a single component=http tag, got %q", out)
	}
	if !strings.Contains(out, "request_id=r1") {
		t.Errorf("attributes added before WithComponent were lost: %q", out)
	}
}

func TestRecordFieldsOmitEmpty(t *testing.T) {
	f := NewFields().WithRecord("capital-provider", "", 2024, "")
	if _, ok := f[FieldCompany]; ok {
		t.Fatal("empty company should be omitted")
	}
	if f[FieldYear] != 2024 {
		t.Fatalf("year missing: %v", f)
	}
	f = NewFields().WithError(nil)
	if len(f) != 0 {
		t.Fatalf("nil error should add nothing: %v", f)
	}
	f = NewFields().WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Fatalf("unexpected error field %v", f)
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.InfoContext(r.Context(), "inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id not attached: %q", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must fall back to the default logger")
	}
}
