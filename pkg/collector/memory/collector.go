// Package memory samples per-process RSS inside running containers through ps.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/srodi/memtop/pkg/types"
)

// Skip reasons reported for containers left out of a tick.
const (
	SkipExecError = "exec_error"
	SkipTimeout   = "timeout"
)

// Runtime lists containers and runs commands inside them.
type Runtime interface {
	Executor
	Containers(ctx context.Context) ([]types.Container, error)
}

// Skip records a container that produced no samples this tick.
type Skip struct {
	Container string
	Reason    string
	Err       error
}

// Snapshot is everything one tick gathered across all containers.
type Snapshot struct {
	Containers int
	Samples    []types.ProcessSample
	Skipped    []Skip
	Discarded  int
}

// Collector walks every running container once per Snapshot call.
type Collector struct {
	rt     Runtime
	logger *slog.Logger
}

// NewCollector returns a collector backed by rt.
func NewCollector(rt Runtime, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{rt: rt, logger: logger}
}

// Snapshot samples all containers sequentially. Only a discovery failure is
// returned as an error; per-container failures land in Snapshot.Skipped.
func (c *Collector) Snapshot(ctx context.Context, tick Tick) (Snapshot, error) {
	containers, err := c.rt.Containers(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("discovering containers: %w", err)
	}

	snap := Snapshot{Containers: len(containers)}
	for _, ctr := range containers {
		dialect := DetectDialect(ctx, c.rt, ctr.ID)
		out, err := c.rt.Exec(ctx, ctr.ID, ListCommand(dialect)...)
		if err != nil {
			reason := SkipExecError
			if errors.Is(err, context.DeadlineExceeded) {
				reason = SkipTimeout
			}
			c.logger.Debug("skipping container", "container", ctr.Name, "reason", reason, "error", err)
			snap.Skipped = append(snap.Skipped, Skip{Container: ctr.Name, Reason: reason, Err: err})
			continue
		}

		samples, discarded := ParseListing(out, dialect, ctr.Name, tick)
		snap.Samples = append(snap.Samples, samples...)
		snap.Discarded += discarded
		c.logger.Debug("sampled container", "container", ctr.Name, "dialect", dialect, "samples", len(samples), "discarded", discarded)
	}
	return snap, nil
}
