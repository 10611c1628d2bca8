package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_WritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expresults", "veri.log")
	var console bytes.Buffer

	h, err := Open(Config{Path: path, Console: &console})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if h.Path() != path {
		t.Errorf("expected path %s, got %s", path, h.Path())
	}

	h.Logger().Info("VARIANTS", "labels", []string{"a_x", "a_y"})
	h.Logger().V(1).Info("hidden at verbosity 0")
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Idempotent
	if err := h.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "VARIANTS") || !strings.Contains(string(data), "a_y") {
		t.Errorf("log file missing line: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("V(1) line written at verbosity 0: %s", data)
	}
	if !strings.Contains(console.String(), "VARIANTS") {
		t.Errorf("console missing line: %s", console.String())
	}
}

func TestOpen_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	for _, msg := range []string{"first run", "second run"} {
		h, err := Open(Config{Path: path, Console: &bytes.Buffer{}})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		h.Logger().Info(msg)
		if err := h.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "first run") || !strings.Contains(string(data), "second run") {
		t.Errorf("expected both runs in log, got %s", data)
	}
}

func TestOpen_Verbosity(t *testing.T) {
	var console bytes.Buffer
	h, err := Open(Config{Console: &console, Verbosity: 1})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h.Logger().V(1).Info("job assigned")
	_ = h.Close()

	if h.Path() != "" {
		t.Errorf("expected console-only handle")
	}
	if !strings.Contains(console.String(), "job assigned") {
		t.Errorf("V(1) line missing at verbosity 1: %s", console.String())
	}
}
