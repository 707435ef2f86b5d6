package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("session_id", "abc"))

	log.Warn(context.Background(), "isochrone request failed",
		String("point_id", "ISO-1"),
		Int("minutes", 10),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "isochrone request failed" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["session_id"] != "abc" || entry["point_id"] != "ISO-1" || entry["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", entry)
	}
	if entry["minutes"] != float64(10) {
		t.Fatalf("minutes = %v, want 10", entry["minutes"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("info line missing: %q", out)
	}
}

func TestNoopDropsEverything(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "nothing")
}
