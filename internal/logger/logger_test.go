package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

// resetLogger resets the logger to default state for test isolation
func resetLogger() {
	Init(Options{})
}

func TestInit_Levels(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		log     func()
		message string
		want    bool
	}{
		{"info at default", Options{}, func() { Info("info msg") }, "info msg", true},
		{"debug hidden at default", Options{}, func() { Debug("debug msg") }, "debug msg", false},
		{"debug shown when enabled", Options{Debug: true}, func() { Debug("debug msg") }, "debug msg", true},
		{"warn hidden when quiet", Options{Quiet: true}, func() { Warn("warn msg") }, "warn msg", false},
		{"error shown when quiet", Options{Quiet: true}, func() { Error("error msg") }, "error msg", true},
		{"quiet overrides debug", Options{Debug: true, Quiet: true}, func() { Debug("debug msg") }, "debug msg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			opts := tt.opts
			opts.Output = buf
			Init(opts)
			defer resetLogger()

			tt.log()

			if got := strings.Contains(buf.String(), tt.message); got != tt.want {
				t.Errorf("message logged = %v, want %v (output %q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestInit_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("window closed", "items", 3)

	output := buf.String()
	if !strings.HasPrefix(output, "{") {
		t.Errorf("expected JSON output, got %q", output)
	}
	if !strings.Contains(output, `"items":3`) {
		t.Errorf("expected items attribute, got %q", output)
	}
}

func TestInit_CustomLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Logger: slog.New(slog.NewTextHandler(buf, nil))})
	defer resetLogger()

	Info("custom logger")

	if !strings.Contains(buf.String(), "custom logger") {
		t.Error("expected message routed to custom logger")
	}
}

func TestComponent_AddsAttribute(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	Component("capture").Info("scrolled")

	output := buf.String()
	if !strings.Contains(output, "component=capture") {
		t.Errorf("expected component attribute, got %q", output)
	}
}

func TestWith_ReturnsLoggerWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	With("video_id", "7301").Info("comments stored")

	output := buf.String()
	if !strings.Contains(output, "video_id=7301") {
		t.Errorf("expected attributes in output, got %q", output)
	}
}

func TestContextVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	ctx := context.Background()
	DebugContext(ctx, "debug ctx")
	InfoContext(ctx, "info ctx")
	WarnContext(ctx, "warn ctx")
	ErrorContext(ctx, "error ctx")

	for _, msg := range []string{"debug ctx", "info ctx", "warn ctx", "error ctx"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("expected %q in output", msg)
		}
	}
}

func TestContextVariants_TraceIDs(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	traceID := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	spanID := trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	Component("crawler").InfoContext(ctx, "in span")
	Info("no span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "trace_id="+traceID.String()) || !strings.Contains(lines[0], "span_id="+spanID.String()) {
		t.Errorf("expected trace ids, got %q", lines[0])
	}
	if !strings.Contains(lines[0], "component=crawler") {
		t.Errorf("expected component kept, got %q", lines[0])
	}
	if strings.Contains(lines[1], "trace_id") {
		t.Errorf("unexpected trace id without span: %q", lines[1])
	}
}
