package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestAppendCtx(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)

	ctx := AppendCtx(context.Background(), slog.String("run", "abc"))
	ctx = AppendCtx(ctx, slog.Int("tiles", 2))
	log.InfoContext(ctx, "tile written")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["run"] != "abc" {
		t.Errorf("run = %v, want abc", rec["run"])
	}
	if rec["tiles"] != float64(2) {
		t.Errorf("tiles = %v, want 2", rec["tiles"])
	}
	if rec["msg"] != "tile written" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelWarn)
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
	log.With("k", "v").Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) || !bytes.Contains(buf.Bytes(), []byte("k=v")) {
		t.Errorf("warn record missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pyramid.log")
	w := FileWriter(FileConfig{Path: path, MaxSizeMB: 1})
	log := Logger(w, false, slog.LevelInfo)
	log.Info("hello")
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
