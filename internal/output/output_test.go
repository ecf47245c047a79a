package output

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("*", "watching 2 roots")

	// Then: output contains icon and message
	assert.Equal(t, "* watching 2 roots\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Statusf("", "backend: %s", "fsnotify")

	assert.Equal(t, "   backend: fsnotify\n", buf.String())
}

func TestWriter_Buffer_IsNeverColored(t *testing.T) {
	// Given: a writer over a non-terminal
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing styled messages
	w.Success("started")
	w.Warning("overflow")
	w.Error("root removed")

	// Then: no escape sequences are written
	assert.False(t, w.Color())
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Equal(t, "ok started\nwarn overflow\nerror root removed\n", buf.String())
}

func TestWriter_FormattedVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Successf("%d roots", 2)
	w.Warningf("%s dropped", "events")
	w.Errorf("code %d", 1)

	out := buf.String()
	assert.Contains(t, out, "2 roots")
	assert.Contains(t, out, "events dropped")
	assert.Contains(t, out, "code 1")
}

func TestWriter_Path_IsPlainLine(t *testing.T) {
	// Given: a colored writer
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	// When: printing changed paths
	w.Path("/proj/src/main.go")
	w.Path("/proj/b.txt")

	// Then: each path is on its own unstyled line
	assert.Equal(t, "/proj/src/main.go\n/proj/b.txt\n", buf.String())
}

func TestWriter_Verdict(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Verdict("src/a.go", false)
	w.Verdict("src/a.tmp", true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "accepted  src/a.go", lines[0])
	assert.Equal(t, "ignored   src/a.tmp", lines[1])
}

func TestWriter_KeyValues_SortedAndAligned(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.KeyValues(map[string]string{"roots": "/proj", "backend": "polling"})

	assert.Equal(t, "  backend: polling\n  roots:   /proj\n", buf.String())
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Code("watch:\n  debounce: 300ms")

	assert.Equal(t, "\n  watch:\n    debounce: 300ms\n\n", buf.String())
}

func TestWriter_Header(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Header("Configuration")
	w.Newline()

	assert.Equal(t, "Configuration\n\n", buf.String())
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, IsTTY(f), "regular files are not terminals")
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
	assert.False(t, ColorEnabled(os.Stdout))
}

func TestGetStyles(t *testing.T) {
	plain := GetStyles(true)
	assert.Equal(t, "x", plain.Error.Render("x"))
	assert.Equal(t, lipgloss.Color(ColorRed), GetStyles(false).Error.GetForeground())
}
