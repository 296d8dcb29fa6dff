package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	l := New("test", "debug", "json")
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNew_Levels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("c", "debug", "json").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("c", "nonsense", "json").GetLevel())

	text := New("c", "info", "text")
	_, ok := text.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestWithContext_TraceAndRoute(t *testing.T) {
	l, buf := newBufferLogger(t)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithRoute(ctx, "/samples")
	l.WithContext(ctx).Info("hello")

	entry := lastEntry(t, buf)
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "/samples", entry["route"])
}

func TestLogRequest_LevelByStatus(t *testing.T) {
	l, buf := newBufferLogger(t)

	l.LogRequest(context.Background(), http.MethodGet, "/a", http.StatusOK, time.Millisecond)
	assert.Equal(t, "info", lastEntry(t, buf)["level"])

	l.LogRequest(context.Background(), http.MethodGet, "/a", http.StatusNotFound, time.Millisecond)
	assert.Equal(t, "warning", lastEntry(t, buf)["level"])

	l.LogRequest(context.Background(), http.MethodGet, "/a", http.StatusBadGateway, time.Millisecond)
	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, float64(http.StatusBadGateway), entry["status"])
}

func TestTraceID(t *testing.T) {
	id := NewTraceID()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, NewTraceID())

	assert.Equal(t, "", GetTraceID(context.Background()))
	assert.Equal(t, id, GetTraceID(WithTraceID(context.Background(), id)))
}

func TestNamed(t *testing.T) {
	l, buf := newBufferLogger(t)
	l.Named("other").WithContext(context.Background()).Info("x")
	assert.Equal(t, "other", lastEntry(t, buf)["component"])
	assert.Equal(t, "test", l.Component())
}
