package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExportsCounters(t *testing.T) {
	// Given: counters with some activity
	s := NewStats()
	s.RecordRaw()
	s.RecordRaw()
	s.RecordDelivered()
	s.RecordReactError(errors.New("boom"))

	// When: collecting
	c := NewCollector(s, nil)

	// Then: every counter and the uptime gauge are exported
	assert.Equal(t, 9, testutil.CollectAndCount(c))

	expected := `
# HELP treewatch_raw_events_total Raw file system events received from the watcher.
# TYPE treewatch_raw_events_total counter
treewatch_raw_events_total 2
# HELP treewatch_delivered_changes_total Paths handed to the reaction function.
# TYPE treewatch_delivered_changes_total counter
treewatch_delivered_changes_total 1
# HELP treewatch_react_errors_total Reaction calls that returned an error or panicked.
# TYPE treewatch_react_errors_total counter
treewatch_react_errors_total 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"treewatch_raw_events_total",
		"treewatch_delivered_changes_total",
		"treewatch_react_errors_total",
	)
	assert.NoError(t, err)
}

func TestCollector_ConstLabels(t *testing.T) {
	s := NewStats()
	s.RecordRescan()
	c := NewCollector(s, prometheus.Labels{"session": "proj"})

	expected := `
# HELP treewatch_rescans_total Full rescans of the watch roots.
# TYPE treewatch_rescans_total counter
treewatch_rescans_total{session="proj"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "treewatch_rescans_total"))
}

func TestCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(NewStats(), nil))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestNewRegistry_RegistersRuntimeCollectors(t *testing.T) {
	reg, err := NewRegistry(NewStats(), nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["treewatch_settled_changes_total"])
	assert.True(t, names["go_goroutines"])
}

func TestHandler_ServesMetrics(t *testing.T) {
	s := NewStats()
	s.RecordOverflow()
	reg, err := NewRegistry(s, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "treewatch_overflows_total 1")
}

func TestServe_StopsOnCancel(t *testing.T) {
	// Given: a free local port
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	reg, err := NewRegistry(NewStats(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg) }()

	// When: the server is reachable and the context is cancelled
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	cancel()

	// Then: Serve returns cleanly
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_BadAddress(t *testing.T) {
	reg, err := NewRegistry(NewStats(), nil)
	require.NoError(t, err)

	err = Serve(context.Background(), "256.0.0.1:bad", reg)

	assert.Error(t, err)
}
