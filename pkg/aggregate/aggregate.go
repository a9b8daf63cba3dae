// Package aggregate folds per-tick samples into one running record per process identity.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/srodi/memtop/pkg/types"
)

// Policy decides how repeated RSS observations of one identity are combined.
type Policy int

const (
	// Cumulative sums every observation (memory-seconds pressure).
	Cumulative Policy = iota
	// Peak keeps the largest observation.
	Peak
)

// ParsePolicy accepts "cumulative"/"sum" and "peak"/"max".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cumulative", "sum":
		return Cumulative, nil
	case "peak", "max":
		return Peak, nil
	}
	return Cumulative, fmt.Errorf("unknown aggregation policy %q", s)
}

func (p Policy) String() string {
	if p == Peak {
		return "peak"
	}
	return "cumulative"
}

// UnmarshalText lets the policy be set from YAML and flags.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Fold combines the accumulated value with a new observation.
func (p Policy) Fold(acc, rssKB uint64) uint64 {
	if p == Peak {
		return max(acc, rssKB)
	}
	return acc + rssKB
}

// Aggregator owns the identity -> record map for one run. It is not safe for
// concurrent use; the sampler loop is its only writer.
type Aggregator struct {
	policy  Policy
	records map[types.Identity]*types.AggregateRecord
	order   []types.Identity
}

// New returns an empty aggregator using policy.
func New(policy Policy) *Aggregator {
	a := &Aggregator{policy: policy}
	a.Start()
	return a
}

// Policy reports the policy fixed at construction.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Start clears all state for a fresh run.
func (a *Aggregator) Start() {
	a.records = make(map[types.Identity]*types.AggregateRecord)
	a.order = nil
}

// Observe folds one sample into its identity's record, creating it on first sight.
func (a *Aggregator) Observe(s types.ProcessSample) {
	id := s.Identity()
	rec, ok := a.records[id]
	if !ok {
		rec = &types.AggregateRecord{Identity: id}
		a.records[id] = rec
		a.order = append(a.order, id)
	}
	rec.AccumulatedRSSKB = a.policy.Fold(rec.AccumulatedRSSKB, s.RSSKB)
	rec.LastMemPercent = s.MemPercent
	rec.LastThreads = s.Threads
}

// ObserveAll folds a batch in order.
func (a *Aggregator) ObserveAll(samples []types.ProcessSample) {
	for _, s := range samples {
		a.Observe(s)
	}
}

// Len is the number of distinct identities seen.
func (a *Aggregator) Len() int {
	return len(a.order)
}

// Lookup returns a copy of the record for id.
func (a *Aggregator) Lookup(id types.Identity) (types.AggregateRecord, bool) {
	rec, ok := a.records[id]
	if !ok {
		return types.AggregateRecord{}, false
	}
	return *rec, true
}

// Records returns copies of every record in first-observed order.
func (a *Aggregator) Records() []types.AggregateRecord {
	out := make([]types.AggregateRecord, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.records[id])
	}
	return out
}
