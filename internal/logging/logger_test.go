package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestContextRecordsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug").With(slog.String("component", "test"))

	logger.InfoContext(WithRequestID(context.Background(), "req-1"), "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["request_id"] != "req-1" || record["component"] != "test" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "loud")

	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at default level: %s", buf.String())
	}
	logger.Info("kept")
	if buf.Len() == 0 {
		t.Fatalf("info record missing")
	}
}
