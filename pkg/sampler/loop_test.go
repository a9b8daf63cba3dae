package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/collector/memory"
	"github.com/srodi/memtop/pkg/metrics"
	"github.com/srodi/memtop/pkg/types"
)

type scriptedCollector struct {
	snaps   []memory.Snapshot
	errs    []error
	ticks   []memory.Tick
	onTick  func(n int)
	ctxErrs []error
}

func (c *scriptedCollector) Snapshot(ctx context.Context, tick memory.Tick) (memory.Snapshot, error) {
	n := len(c.ticks)
	c.ticks = append(c.ticks, tick)
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	if c.onTick != nil {
		c.onTick(n)
	}
	if n < len(c.errs) && c.errs[n] != nil {
		return memory.Snapshot{}, c.errs[n]
	}
	if n < len(c.snaps) {
		return c.snaps[n], nil
	}
	return memory.Snapshot{}, nil
}

type memorySink struct {
	ticks  [][]types.ProcessSample
	closed int
	err    error
}

func (s *memorySink) WriteTick(samples []types.ProcessSample) error {
	if s.err != nil {
		return s.err
	}
	s.ticks = append(s.ticks, samples)
	return nil
}

func (s *memorySink) Close() error {
	s.closed++
	return nil
}

func snapshot(rss ...uint64) memory.Snapshot {
	snap := memory.Snapshot{Containers: 1}
	for _, v := range rss {
		snap.Samples = append(snap.Samples, types.ProcessSample{Container: "app", PID: "1", Cmdline: "worker", RSSKB: v})
	}
	return snap
}

func TestRunStopsAfterMaxTicksAndReportsOnce(t *testing.T) {
	col := &scriptedCollector{snaps: []memory.Snapshot{snapshot(100), snapshot(50), snapshot(200)}}
	sink := &memorySink{}
	var reports [][]types.AggregateRecord
	m := metrics.New()

	loop := New(Options{
		Interval:   time.Millisecond,
		Collector:  col,
		Aggregator: aggregate.New(aggregate.Peak),
		Sink:       sink,
		Metrics:    m,
		MaxTicks:   3,
		Report: func(records []types.AggregateRecord) error {
			reports = append(reports, records)
			return nil
		},
	})
	require.Equal(t, Idle, loop.State())
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, Terminated, loop.State())
	assert.Equal(t, 3, loop.Ticks())
	assert.Len(t, sink.ticks, 3)
	assert.Equal(t, 1, sink.closed)
	require.Len(t, reports, 1)
	require.Len(t, reports[0], 1)
	assert.Equal(t, uint64(200), reports[0][0].AccumulatedRSSKB)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Ticks))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Samples))
}

func TestCancelLetsInFlightTickFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	col := &scriptedCollector{
		snaps:  []memory.Snapshot{snapshot(10), snapshot(20)},
		onTick: func(n int) { cancel() },
	}
	sink := &memorySink{}
	reported := 0

	loop := New(Options{
		Interval:  time.Hour,
		Collector: col,
		Sink:      sink,
		Report:    func([]types.AggregateRecord) error { reported++; return nil },
	})
	require.NoError(t, loop.Run(ctx))

	require.Len(t, col.ticks, 1)
	assert.NoError(t, col.ctxErrs[0], "tick work must not see the cancellation")
	assert.Len(t, sink.ticks, 1, "rows from the in-flight tick are kept")
	assert.Equal(t, 1, reported)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, Terminated, loop.State())
}

func TestPersistenceFailureIsFatalButStillReports(t *testing.T) {
	boom := errors.New("disk full")
	sink := &memorySink{err: boom}
	reported := 0

	loop := New(Options{
		Interval:  time.Millisecond,
		Collector: &scriptedCollector{snaps: []memory.Snapshot{snapshot(1)}},
		Sink:      sink,
		Report:    func([]types.AggregateRecord) error { reported++; return nil },
	})
	err := loop.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, reported)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, Terminated, loop.State())
}

func TestDiscoveryFailureKeepsRunning(t *testing.T) {
	col := &scriptedCollector{
		errs:  []error{errors.New("daemon unreachable")},
		snaps: []memory.Snapshot{{}, snapshot(5)},
	}
	sink := &memorySink{}
	m := metrics.New()

	loop := New(Options{Interval: time.Millisecond, Collector: col, Sink: sink, Metrics: m, MaxTicks: 2})
	require.NoError(t, loop.Run(context.Background()))

	assert.Len(t, col.ticks, 2)
	assert.Len(t, sink.ticks, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DiscoveryFailures))
}

func TestSkippedContainersAreCounted(t *testing.T) {
	snap := snapshot(5)
	snap.Skipped = []memory.Skip{{Container: "gone", Reason: memory.SkipExecError}, {Container: "slow", Reason: memory.SkipTimeout}}
	m := metrics.New()

	loop := New(Options{Interval: time.Millisecond, Collector: &scriptedCollector{snaps: []memory.Snapshot{snap}}, Sink: &memorySink{}, Metrics: m, MaxTicks: 1})
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ContainersSkipped.WithLabelValues(memory.SkipTimeout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ContainersSkipped.WithLabelValues(memory.SkipExecError)))
}

func TestTickCarriesElapsedSeconds(t *testing.T) {
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 1240 * time.Millisecond)
	}
	col := &scriptedCollector{}

	loop := New(Options{Collector: col, Sink: &memorySink{}, MaxTicks: 2, Clock: clock})
	require.NoError(t, loop.Run(context.Background()))

	require.Len(t, col.ticks, 2)
	assert.Equal(t, 1.2, col.ticks[0].ElapsedSeconds)
	assert.True(t, col.ticks[1].ElapsedSeconds > col.ticks[0].ElapsedSeconds)
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 700*time.Millisecond, nextDelay(time.Second, 300*time.Millisecond))
	assert.Equal(t, time.Duration(0), nextDelay(time.Second, time.Second))
	assert.Equal(t, time.Duration(0), nextDelay(time.Second, 3*time.Second))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "idle", Idle.String())
}
