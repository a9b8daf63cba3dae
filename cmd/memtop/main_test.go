package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/metrics"
	"github.com/srodi/memtop/pkg/report"
	"github.com/srodi/memtop/pkg/types"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, time.Second, cfg.ExecTimeout)
	assert.Equal(t, "docker_mem_log.csv", cfg.LogPath)
	assert.Equal(t, aggregate.Cumulative, cfg.Policy)
	assert.Equal(t, 0, cfg.MaxTicks)
}

func TestParseConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: peak\ntop_n: 3\nruntime: podman\n"), 0o600))

	cfg, err := parseConfig([]string{"-config", path, "-topk", "5", "-interval", "2s", "-count", "4", "out.csv"})
	require.NoError(t, err)
	assert.Equal(t, aggregate.Peak, cfg.Policy, "unset flags keep file values")
	assert.Equal(t, "podman", cfg.Runtime)
	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.ExecTimeout, "timeout follows the overridden interval")
	assert.Equal(t, 4, cfg.MaxTicks)
	assert.Equal(t, "out.csv", cfg.LogPath)
}

func TestParseConfigExplicitTimeout(t *testing.T) {
	cfg, err := parseConfig([]string{"-interval", "3s", "-exec-timeout", "500ms"})
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.ExecTimeout)
}

func TestParseConfigRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"-policy", "median"},
		{"-unit", "TiB"},
		{"-count", "-1"},
		{"-interval", "0"},
		{"-exec-timeout", "0"},
		{"-topk", "0"},
		{"a.csv", "b.csv"},
	} {
		_, err := parseConfig(args)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestWriteReportCopiesPlainSummary(t *testing.T) {
	records := []types.AggregateRecord{
		{Identity: types.Identity{Container: "api", PID: "7", Cmdline: "node server.js"}, AccumulatedRSSKB: 2048, LastMemPercent: 1.5, LastThreads: 9},
	}
	summary := filepath.Join(t.TempDir(), "summary.txt")
	var out bytes.Buffer

	err := writeReport(&out, summary, records, report.Options{TopN: 10, Unit: report.MiB, Styled: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "\033[1m[api]")

	data, err := os.ReadFile(summary)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\033[")
	assert.Contains(t, string(data), "[api]")
	assert.Contains(t, string(data), "node server.js")
}

func TestLogSummaryReportsCounters(t *testing.T) {
	m := metrics.New()
	m.ObserveTick(1, 4, 2, 3, time.Millisecond)
	m.SkipContainer("timeout")
	m.DiscoveryFailed()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logSummary(logger, 2, 4, 3, m.Totals(), 1500*time.Millisecond)

	line := buf.String()
	for _, want := range []string{
		"ticks=2",
		"rows=4",
		"identities=3",
		"lines_discarded=2",
		"containers_skipped=1",
		"discovery_failures=1",
		"duration=1.5s",
	} {
		assert.Contains(t, line, want)
	}
}
