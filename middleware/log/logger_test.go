package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taskroom.log")
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: path})
		require.NoError(t, err)

		l.Info("room created", zap.String("room_id", "r1"))
		require.NoError(t, l.Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "room created")
		assert.Contains(t, string(content), `"room_id":"r1"`)
	})

	t.Run("unwritable file path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Output: "file", FilePath: filepath.Join(t.TempDir(), "missing", "x.log")})
		assert.Error(t, err)
	})

	t.Run("stdout output closes cleanly", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("hello")
		assert.NoError(t, l.Close())
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"INFO", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"fatal", "fatal"},
		{"bogus", "info"},
		{"", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in).String())
		})
	}
}

func TestForAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	ctx := WithActor(WithTraceID(context.Background(), "trace-1"), "u1")
	l.InfoContext(ctx, "task deleted", zap.String("task_id", "t1"))
	l.InfoContext(context.Background(), "no context")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "trace-1", entries[0]["trace_id"])
	assert.Equal(t, "u1", entries[0]["actor"])
	assert.Equal(t, "t1", entries[0]["task_id"])
	assert.NotContains(t, entries[1], "trace_id")
	assert.NotContains(t, entries[1], "actor")
}

func TestViolationContextPanicsInDevelopment(t *testing.T) {
	dev, err := zap.NewDevelopment()
	require.NoError(t, err)
	l := &Logger{Logger: dev}

	assert.Panics(t, func() {
		l.ViolationContext(context.Background(), "no session")
	})

	var buf bytes.Buffer
	prod := NewWriterLogger(&config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	assert.NotPanics(t, func() {
		prod.ViolationContext(context.Background(), "no session")
	})
	assert.Contains(t, buf.String(), `"level":"dpanic"`)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	l := NewWriterLogger(&config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	var seen string
	r := gin.New()
	r.Use(GinMiddleware(l))
	r.GET("/ping", func(c *gin.Context) {
		seen = TraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("propagates incoming trace header", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TraceHeader, "abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc", seen)
		assert.Equal(t, "abc", w.Header().Get(TraceHeader))

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "/ping", entries[0]["path"])
		assert.Equal(t, float64(http.StatusNoContent), entries[0]["status"])
	})

	t.Run("generates trace id when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get(TraceHeader))
	})
}
