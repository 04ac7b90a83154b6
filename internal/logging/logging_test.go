package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// captureLogOutput temporarily redirects the logger to a buffer.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("json") != FormatJSON {
		t.Error("expected FormatJSON for json")
	}
	if ParseFormat("JSON") != FormatJSON {
		t.Error("expected FormatJSON for JSON")
	}
	if ParseFormat("text") != FormatText {
		t.Error("expected FormatText for text")
	}
	if ParseFormat("") != FormatText {
		t.Error("expected FormatText for empty value")
	}
}

func TestInitLoggerTo(t *testing.T) {
	tests := []struct {
		name     string
		level    Level
		format   Format
		logDebug bool
		want     string
	}{
		{"json info", LevelInfo, FormatJSON, false, `"msg":"hello"`},
		{"text info", LevelInfo, FormatText, false, "msg=hello"},
		{"json debug", LevelDebug, FormatJSON, true, `"level":"DEBUG"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLoggerTo(&buf, tt.level, tt.format)
			defer InitLogger(LevelInfo, FormatText)

			if tt.logDebug {
				Debug("hello", "k", "v")
			} else {
				Info("hello", "k", "v")
			}

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestInitLoggerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelWarn, FormatJSON)
	defer InitLogger(LevelInfo, FormatText)

	Info("dropped")
	Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn message should be logged at warn level")
	}
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "Context with request ID",
			ctx:      WithRequestID(context.Background(), "test-id"),
			expected: "test-id",
		},
		{
			name:     "Context without request ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "Context with wrong type value",
			ctx:      context.WithValue(context.Background(), RequestIDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRequestID(tt.ctx); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-request-id")

	fns := map[string]func(){
		"DebugContext": func() { DebugContext(ctx, "debug message") },
		"InfoContext":  func() { InfoContext(ctx, "info message") },
		"WarnContext":  func() { WarnContext(ctx, "warning message") },
		"ErrorContext": func() { ErrorContext(ctx, "error message") },
	}

	for name, fn := range fns {
		t.Run(name, func(t *testing.T) {
			output := captureLogOutput(fn)
			if !strings.Contains(output, "test-request-id") {
				t.Errorf("expected request ID in output, got %q", output)
			}
		})
	}
}

func TestEventHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")

	tests := []struct {
		name string
		fn   func()
		want []string
	}{
		{
			name: "HTTPRequestContext",
			fn: func() {
				HTTPRequestContext(ctx, "GET", "/get-data", "127.0.0.1:1", 200, 5*time.Millisecond)
			},
			want: []string{"http_request", "/get-data", "req-1"},
		},
		{
			name: "DatabaseEvent",
			fn: func() {
				DatabaseEvent(ctx, "initialized", "sqlite", "users", "path", "data.db")
			},
			want: []string{"database_event", "initialized", "users", "data.db"},
		},
		{
			name: "ScriptRun",
			fn: func() {
				ScriptRun(ctx, "run-1", "hello.py", 0, time.Second)
			},
			want: []string{"script_run", "run-1", "hello.py"},
		},
		{
			name: "WebSocketEvent",
			fn: func() {
				WebSocketEvent("client_connected", 2)
			},
			want: []string{"websocket_event", "client_connected"},
		},
		{
			name: "ServerStartup",
			fn: func() {
				ServerStartup("http", ":5000", "driver", "sqlite")
			},
			want: []string{"server_startup", ":5000", "sqlite"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.fn)
			for _, w := range tt.want {
				if !strings.Contains(output, w) {
					t.Errorf("output %q does not contain %q", output, w)
				}
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" {
			t.Fatal("expected a generated request ID in context")
		}
		if got := w.Header().Get("X-Request-ID"); got != seen {
			t.Errorf("header X-Request-ID = %q, want %q", got, seen)
		}
	})

	t.Run("keeps incoming ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "abc" {
			t.Errorf("request ID = %q, want abc", seen)
		}
	})
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	handler := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	var w *httptest.ResponseRecorder
	output := captureLogOutput(func() {
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/add-row", nil))
	})

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	if !strings.Contains(output, `"status_code":418`) {
		t.Errorf("expected status 418 in log, got %q", output)
	}
	if !strings.Contains(output, "/add-row") {
		t.Errorf("expected path in log, got %q", output)
	}
}
