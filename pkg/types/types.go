package types

import "time"

// DefaultTopK controls how many processes we display per container.
const DefaultTopK = 10

// DialectKind identifies which ps implementation a container ships.
type DialectKind int

const (
	// DialectRich is procps ps: pid, rss, pmem, nlwp, comm, args.
	DialectRich DialectKind = iota
	// DialectMinimal is BusyBox ps: pid, rss, comm, args only.
	DialectMinimal
)

func (d DialectKind) String() string {
	switch d {
	case DialectMinimal:
		return "minimal"
	default:
		return "rich"
	}
}

// Container is one running container as reported by the runtime.
type Container struct {
	ID   string
	Name string
}

// ProcessSample is a single observation of one process at one tick.
type ProcessSample struct {
	Timestamp      time.Time
	ElapsedSeconds float64
	Container      string
	PID            string
	RSSKB          uint64
	MemPercent     float64
	Threads        int
	Cmdline        string
}

// Identity returns the key used to treat observations across ticks as the same process.
func (s ProcessSample) Identity() Identity {
	return Identity{Container: s.Container, PID: s.PID, Cmdline: s.Cmdline}
}

// Identity binds PID to the full command line since PIDs get reused.
type Identity struct {
	Container string
	PID       string
	Cmdline   string
}

// AggregateRecord is the running state kept for one Identity.
type AggregateRecord struct {
	Identity
	AccumulatedRSSKB uint64
	LastMemPercent   float64
	LastThreads      int
}
