package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWritesJSONAtLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("dropped")
	logger.Warn("kept", "booking_id", "b-1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "kept" || record["booking_id"] != "b-1" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.DiscardHandler)
	scoped := slog.New(slog.DiscardHandler).With("request_id", "r-1")

	if got := FromContext(context.Background()); got != nil {
		t.Fatal("expected no logger on a bare context")
	}
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback logger")
	}

	ctx := ContextWithLogger(context.Background(), scoped)
	if got := FromContextOr(ctx, fallback); got != scoped {
		t.Fatal("expected scoped logger")
	}
	if got := ContextWithLogger(ctx, nil); got != ctx {
		t.Fatal("nil logger should leave the context unchanged")
	}
}
