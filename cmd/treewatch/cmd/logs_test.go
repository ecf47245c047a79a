package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/logging"
)

const sampleLog = `{"time":"2026-01-02T03:04:05.000Z","level":"DEBUG","msg":"rescan","roots":1}
{"time":"2026-01-02T03:04:06.000Z","level":"INFO","msg":"watch started","backend":"fsnotify"}
not json
{"time":"2026-01-02T03:04:07.000Z","level":"WARN","msg":"overflow","dropped":3}
`

func writeSampleLog(t *testing.T) string {
	t.Helper()
	path := logging.DefaultLogPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

// =============================================================================
// logs
// =============================================================================

func TestLogsCmd_TailsDefaultLog(t *testing.T) {
	// Given: a debug log in the treewatch home
	isolate(t)
	path := writeSampleLog(t)

	// When: showing the last two lines
	stdout, stderr, err := execute(t, "logs", "-n", "2", "--no-color")

	// Then: only those lines are printed, formatted
	require.NoError(t, err)
	assert.Contains(t, stderr, "Log file: "+path)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "not json", lines[0])
	assert.Equal(t, "03:04:07.000 WARN  overflow dropped=3", lines[1])
}

func TestLogsCmd_LevelAndFilter(t *testing.T) {
	isolate(t)
	writeSampleLog(t)

	stdout, _, err := execute(t, "logs", "-n", "0", "--level", "info", "--filter", "started")

	require.NoError(t, err)
	assert.Equal(t, "03:04:06.000 INFO  watch started backend=fsnotify\n", stdout)
}

func TestLogsCmd_ExplicitFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))

	stdout, _, err := execute(t, "logs", "--file", path, "--level", "warn")

	require.NoError(t, err)
	assert.Contains(t, stdout, "overflow")
	assert.NotContains(t, stdout, "rescan")
}

func TestLogsCmd_NoLogFile(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "logs")

	require.Error(t, err)
	assert.Equal(t, twerrors.ErrCodeConfigNotFound, twerrors.GetCode(err))
	assert.Contains(t, twerrors.FormatForCLI(err), "--debug")
}

func TestLogsCmd_InvalidFilter(t *testing.T) {
	isolate(t)
	writeSampleLog(t)

	_, _, err := execute(t, "logs", "--filter", "([")

	assert.Equal(t, twerrors.ErrCodeInvalidInput, twerrors.GetCode(err))
}

func TestLogsCmd_InvalidLevel(t *testing.T) {
	isolate(t)
	writeSampleLog(t)

	_, _, err := execute(t, "logs", "--level", "loud")

	assert.Equal(t, twerrors.ErrCodeInvalidInput, twerrors.GetCode(err))
}

// =============================================================================
// Profiling flags
// =============================================================================

func TestRootCmd_ProfilingFlagsWriteFiles(t *testing.T) {
	// Given: profile outputs in a temp dir
	isolate(t)
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	mem := filepath.Join(dir, "mem.prof")

	// When: running a command with profiling
	_, _, err := execute(t, "--profile-cpu", cpu, "--profile-mem", mem, "version", "--short")

	// Then: both profiles were written
	require.NoError(t, err)
	for _, p := range []string{cpu, mem} {
		info, statErr := os.Stat(p)
		require.NoError(t, statErr)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestRootCmd_ProfilingBadPath(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "--profile-cpu", filepath.Join(t.TempDir(), "missing", "cpu.prof"), "version")

	require.Error(t, err)
	assert.Equal(t, twerrors.ErrCodeInvalidInput, twerrors.GetCode(err))
}
