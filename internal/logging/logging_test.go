package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultLogDir(t *testing.T) {
	t.Setenv("TREEWATCH_HOME", "")

	dir := DefaultLogDir()
	if !strings.Contains(dir, ".treewatch") || filepath.Base(dir) != "logs" {
		t.Errorf("DefaultLogDir should end in .treewatch/logs, got: %s", dir)
	}
}

func TestDefaultLogDir_HomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TREEWATCH_HOME", home)

	if got := DefaultLogDir(); got != filepath.Join(home, "logs") {
		t.Errorf("expected %s, got: %s", filepath.Join(home, "logs"), got)
	}
	if got := filepath.Base(DefaultLogPath()); got != "treewatch.log" {
		t.Errorf("DefaultLogPath should end with treewatch.log, got: %s", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.FilePath != "" {
		t.Errorf("default config should not log to a file, got: %s", cfg.FilePath)
	}
	if cfg.Stderr != os.Stderr {
		t.Error("expected stderr output")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
	if cfg.FilePath != DefaultLogPath() {
		t.Errorf("expected file %s, got: %s", DefaultLogPath(), cfg.FilePath)
	}
}

func TestSetup_TextToStderr(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(Config{Level: "warn", Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown", slog.String("root", "/proj"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "root=/proj") {
		t.Errorf("expected text record, got: %s", out)
	}
}

func TestSetup_JSONToFileAndStderr(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sub", "test.log")
	var stderr bytes.Buffer

	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  3,
		Stderr:    &stderr,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("settled", slog.String("path", "/proj/main.go"))
	cleanup()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, content)
	}
	if record["msg"] != "settled" || record["path"] != "/proj/main.go" {
		t.Errorf("unexpected record: %v", record)
	}
	if stderr.String() != string(content) {
		t.Errorf("stderr should mirror the file, got: %s", stderr.String())
	}
}

func TestSetup_BadLevel(t *testing.T) {
	if _, _, err := Setup(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetupDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	cleanup, err := SetupDefault(Config{Level: "info", Stderr: &buf})
	if err != nil {
		t.Fatalf("SetupDefault failed: %v", err)
	}
	defer cleanup()

	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger not installed, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindLogFile(t *testing.T) {
	t.Setenv("TREEWATCH_HOME", t.TempDir())

	if _, err := FindLogFile(""); err == nil {
		t.Error("expected error when no log file exists")
	}
	if _, err := FindLogFile("/nonexistent/treewatch.log"); err == nil {
		t.Error("expected error for missing explicit path")
	}

	explicit := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(explicit, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := FindLogFile(explicit); err != nil || got != explicit {
		t.Errorf("FindLogFile(%s) = %s, %v", explicit, got, err)
	}

	w, err := NewRotatingWriter(DefaultLogPath(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	if got, err := FindLogFile(""); err != nil || got != DefaultLogPath() {
		t.Errorf("FindLogFile(\"\") = %s, %v", got, err)
	}
}

// ============================================================================
// Writer Rotation Tests
// ============================================================================

// smallWriter returns a writer that rotates after limit bytes.
func smallWriter(t *testing.T, path string, limit int64, maxFiles int) *RotatingWriter {
	t.Helper()
	w, err := NewRotatingWriter(path, 1, maxFiles)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	w.maxSize = limit
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	w := smallWriter(t, logPath, 1024, 3)

	chunk := bytes.Repeat([]byte("x"), 800)
	for i := 0; i < 2; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	rotated, err := os.ReadFile(logPath + ".1")
	if err != nil {
		t.Fatalf("rotated file .1 should exist: %v", err)
	}
	if len(rotated) != 800 {
		t.Errorf("rotated file should hold the first write, got %d bytes", len(rotated))
	}
	current, _ := os.ReadFile(logPath)
	if len(current) != 800 {
		t.Errorf("current file should hold the second write, got %d bytes", len(current))
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")
	w := smallWriter(t, logPath, 100, 2)

	for i := 0; i < 6; i++ {
		if _, err := w.Write([]byte(fmt.Sprintf("%03d%s", i, strings.Repeat("y", 97)))); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotated file .3 should not exist (beyond maxFiles)")
	}
	newest, err := os.ReadFile(logPath + ".1")
	if err != nil {
		t.Fatalf("rotated file .1 should exist: %v", err)
	}
	if !strings.HasPrefix(string(newest), "004") {
		t.Errorf("expected .1 to hold write 004, got: %.3s", newest)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("write after close should fail")
	}
}

func TestRotatingWriter_SyncAndAppend(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sync.log")
	if err := os.WriteFile(logPath, []byte("existing\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.SetImmediateSync(false)

	if _, err := w.Write([]byte("appended\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}

	content, _ := os.ReadFile(logPath)
	if string(content) != "existing\nappended\n" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w := smallWriter(t, logPath, 4096, 3)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = fmt.Fprintf(w, `{"id":%d,"iter":%d}`+"\n", id, j)
			}
		}(i)
	}
	wg.Wait()

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if info.Size() == 0 || info.Size() > 4096 {
		t.Errorf("current file size out of range: %d", info.Size())
	}
}
