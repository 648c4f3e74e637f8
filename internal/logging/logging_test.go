package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigure_JSON(t *testing.T) {
	defer Configure(Options{})

	var buf bytes.Buffer
	Configure(Options{Level: "warn", JSON: true, Output: &buf})

	L().Info("dropped")
	L().Warn("kept", "row", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" || rec["row"] != float64(3) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestInitFromEnv(t *testing.T) {
	defer Configure(Options{})

	t.Setenv("MANIFESTFLOW_LOG_LEVEL", "debug")
	t.Setenv("MANIFESTFLOW_LOG_JSON", "true")
	InitFromEnv()

	if !L().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level should be enabled")
	}
}
