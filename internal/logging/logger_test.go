package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type captureWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *captureWriter) Sync() error { return nil }

func (w *captureWriter) lines(t *testing.T) []map[string]any {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(w.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func newCaptureLogger(level Level) (*Logger, *captureWriter) {
	w := &captureWriter{}
	return &Logger{level: level, writer: w, fields: make(map[string]any)}, w
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, w := newCaptureLogger(WarnLevel)
	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("heard")
	logger.Error("also heard")

	entries := w.lines(t)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Fatalf("unexpected levels: %v", entries)
	}
}

func TestLoggerFieldsAndErrors(t *testing.T) {
	logger, w := newCaptureLogger(InfoLevel)
	derived := logger.With(String("room_id", "table-9"))
	derived.Info("room created", Int("connections", 3), Error(errors.New("boom")))

	entries := w.lines(t)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["room_id"] != "table-9" {
		t.Fatalf("With field missing: %v", entry)
	}
	if entry["connections"] != float64(3) {
		t.Fatalf("int field missing: %v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("error field should render its message: %v", entry)
	}
	if entry["message"] != "room created" || entry["timestamp"] == nil {
		t.Fatalf("envelope fields missing: %v", entry)
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	logger, w := newCaptureLogger(InfoLevel)
	_ = logger.With(String("room_id", "table-9"))
	logger.Info("plain")

	entries := w.lines(t)
	if _, ok := entries[0]["room_id"]; ok {
		t.Fatal("With must not leak fields into the parent logger")
	}
}

func TestHTTPTraceMiddleware(t *testing.T) {
	logger, _ := newCaptureLogger(InfoLevel)
	var seenTrace string
	handler := HTTPTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = TraceIDFromContext(r.Context())
		if LoggerFromContext(r.Context()) == nil {
			t.Fatal("context logger missing")
		}
	}))

	// A supplied trace ID is propagated unchanged.
	r := httptest.NewRequest("GET", "/livez", nil)
	r.Header.Set(TraceIDHeader, "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if seenTrace != "trace-123" {
		t.Fatalf("expected propagated trace id, got %q", seenTrace)
	}
	if got := rec.Header().Get(TraceIDHeader); got != "trace-123" {
		t.Fatalf("response header should echo the trace id, got %q", got)
	}

	// A missing trace ID is generated.
	r = httptest.NewRequest("GET", "/livez", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if seenTrace == "" || rec.Header().Get(TraceIDHeader) == "" {
		t.Fatal("trace id should be generated when absent")
	}
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]Level{
		"debug": DebugLevel, "info": InfoLevel, "": InfoLevel,
		"warn": WarnLevel, "warning": WarnLevel, "error": ErrorLevel, "fatal": FatalLevel,
	} {
		got, err := parseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("parseLevel(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := parseLevel("shout"); err == nil {
		t.Fatal("unknown level should error")
	}
}
