package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestContextChaining(t *testing.T) {
	ctx := WithScanID(context.Background(), 7)
	ctx = WithDocument(ctx, 3, "https://example.com/about/")
	ctx = WithComponent(ctx, "scan")

	lc := GetContext(ctx)
	assert.Equal(t, LogContext{ScanID: 7, DocumentID: 3, SourceURL: "https://example.com/about/", Component: "scan"}, lc)
}

func TestContextIsolation(t *testing.T) {
	parent := WithScanID(context.Background(), 1)
	child := WithScanID(parent, 2)

	assert.Equal(t, int64(1), GetContext(parent).ScanID)
	assert.Equal(t, int64(2), GetContext(child).ScanID)
}

func TestEmptyContext(t *testing.T) {
	assert.Empty(t, Attrs(context.Background()))
}

func TestLevelsCarryContext(t *testing.T) {
	buf := captureLogs(t)
	ctx := WithRequestID(WithScanID(context.Background(), 42), "req-1")

	DebugContext(ctx, "debug")
	InfoContext(ctx, "info")
	WarnContext(ctx, "warn", slog.Int("extra", 1))
	ErrorContext(ctx, "error")

	dec := json.NewDecoder(buf)
	levels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for _, want := range levels {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		assert.Equal(t, want, line["level"])
		assert.InDelta(t, 42, line["scan_id"], 0)
		assert.Equal(t, "req-1", line["request_id"])
		if want == "WARN" {
			assert.InDelta(t, 1, line["extra"], 0)
		}
	}
}
