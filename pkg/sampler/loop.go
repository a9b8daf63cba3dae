// Package sampler drives fixed-interval sampling ticks and guarantees a final report.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/collector/memory"
	"github.com/srodi/memtop/pkg/metrics"
	"github.com/srodi/memtop/pkg/types"
)

// State is the loop lifecycle: Idle -> Running -> Stopping -> Terminated.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	default:
		return "idle"
	}
}

// Collector gathers one tick of samples.
type Collector interface {
	Snapshot(ctx context.Context, tick memory.Tick) (memory.Snapshot, error)
}

// Sink persists raw samples.
type Sink interface {
	WriteTick(samples []types.ProcessSample) error
	Close() error
}

// ReportFunc renders the final aggregate state.
type ReportFunc func(records []types.AggregateRecord) error

// Options wires a Loop.
type Options struct {
	Interval   time.Duration
	Collector  Collector
	Aggregator *aggregate.Aggregator
	Sink       Sink
	Report     ReportFunc
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// MaxTicks stops the loop after that many ticks; zero runs until cancelled.
	MaxTicks int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Loop owns the tick schedule. It is single-threaded: ticks never overlap.
type Loop struct {
	opts     Options
	state    atomic.Int32
	started  time.Time
	ticks    int
	finalize sync.Once
	finalErr error
}

// New returns a loop in the Idle state.
func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Aggregator == nil {
		opts.Aggregator = aggregate.New(aggregate.Cumulative)
	}
	return &Loop{opts: opts}
}

// State reports the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Ticks is the number of completed ticks.
func (l *Loop) Ticks() int {
	return l.ticks
}

// Run ticks until ctx is cancelled, MaxTicks is reached or persistence fails.
// Cancellation never interrupts a tick already in progress. Whatever ends the run,
// the report is rendered and the sink closed exactly once before Run returns.
func (l *Loop) Run(ctx context.Context) (err error) {
	l.started = l.opts.Clock()
	l.opts.Aggregator.Start()
	l.state.Store(int32(Running))
	defer func() { err = errors.Join(err, l.stop()) }()

	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			l.opts.Logger.Info("shutdown requested", "ticks", l.ticks)
			return nil
		}
		tickStart := l.opts.Clock()
		if err := l.tick(work, tickStart); err != nil {
			return err
		}
		if l.opts.MaxTicks > 0 && l.ticks >= l.opts.MaxTicks {
			return nil
		}

		wait := nextDelay(l.opts.Interval, l.opts.Clock().Sub(tickStart))
		if wait == 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.opts.Logger.Info("shutdown requested", "ticks", l.ticks)
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) tick(ctx context.Context, tickStart time.Time) error {
	tick := memory.Tick{
		Timestamp:      tickStart,
		ElapsedSeconds: math.Round(tickStart.Sub(l.started).Seconds()*10) / 10,
	}
	snap, err := l.opts.Collector.Snapshot(ctx, tick)
	if err != nil {
		l.opts.Logger.Warn("tick skipped", "error", err)
		l.opts.Metrics.DiscoveryFailed()
		l.ticks++
		return nil
	}
	for _, skip := range snap.Skipped {
		l.opts.Metrics.SkipContainer(skip.Reason)
	}

	l.opts.Aggregator.ObserveAll(snap.Samples)
	if err := l.opts.Sink.WriteTick(snap.Samples); err != nil {
		return fmt.Errorf("persisting samples: %w", err)
	}
	l.ticks++
	l.opts.Metrics.ObserveTick(snap.Containers, len(snap.Samples), snap.Discarded, l.opts.Aggregator.Len(), l.opts.Clock().Sub(tickStart))
	return nil
}

// stop moves the loop through Stopping to Terminated, reporting and closing once.
func (l *Loop) stop() error {
	l.finalize.Do(func() {
		l.state.Store(int32(Stopping))
		var errs []error
		if l.opts.Report != nil {
			if err := l.opts.Report(l.opts.Aggregator.Records()); err != nil {
				errs = append(errs, fmt.Errorf("rendering report: %w", err))
			}
		}
		if l.opts.Sink != nil {
			if err := l.opts.Sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing sample log: %w", err))
			}
		}
		l.finalErr = errors.Join(errs...)
		l.state.Store(int32(Terminated))
	})
	return l.finalErr
}

// nextDelay is the sleep that keeps ticks on interval; overruns start the next tick
// immediately without catching up on missed ticks.
func nextDelay(interval, worked time.Duration) time.Duration {
	if wait := interval - worked; wait > 0 {
		return wait
	}
	return 0
}
