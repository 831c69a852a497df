package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
)

func captureStdout(t *testing.T, fn func()) []byte {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func TestInfoWritesJSONLine(t *testing.T) {
	out := captureStdout(t, func() {
		Info("recording.segment.started", map[string]any{
			"segment_id":    "seg-1",
			"segment_index": 2,
		})
	})

	scanner := bufio.NewScanner(bytes.NewReader(out))
	if !scanner.Scan() {
		t.Fatalf("expected a log line")
	}
	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, scanner.Text())
	}
	if entry["level"] != "info" || entry["msg"] != "recording.segment.started" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry["segment_id"] != "seg-1" || entry["segment_index"] != float64(2) {
		t.Fatalf("missing fields: %#v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts: %#v", entry)
	}
}

func TestErrorLevel(t *testing.T) {
	out := captureStdout(t, func() {
		Error("analysis.segment.failed", map[string]any{"error": errors.New("boom").Error()})
	})
	var entry map[string]any
	if err := json.Unmarshal(firstLine(out), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "error" || entry["error"] != "boom" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func firstLine(b []byte) []byte {
	for i, c := range b {
		if c == '\n' {
			return b[:i]
		}
	}
	return b
}
