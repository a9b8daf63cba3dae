package memory

import (
	"context"

	"github.com/srodi/memtop/pkg/types"
)

// busyboxProbe exits 0 only when the container's ps is the BusyBox applet.
var busyboxProbe = []string{"sh", "-c", "ps --help 2>&1 | grep -q BusyBox"}

// Executor runs a command inside a container.
type Executor interface {
	Exec(ctx context.Context, id string, argv ...string) ([]byte, error)
}

// DetectDialect probes the container's ps. Any failure, including a missing shell,
// reports DialectRich so sampling always proceeds.
func DetectDialect(ctx context.Context, exec Executor, id string) types.DialectKind {
	if _, err := exec.Exec(ctx, id, busyboxProbe...); err != nil {
		return types.DialectRich
	}
	return types.DialectMinimal
}

// ListCommand returns the ps invocation for the given dialect.
func ListCommand(d types.DialectKind) []string {
	if d == types.DialectMinimal {
		return []string{"ps", "-o", "pid,rss,comm,args"}
	}
	return []string{"ps", "-eo", "pid,rss,pmem,nlwp,comm,args", "--no-headers"}
}
