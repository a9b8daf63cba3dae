package memory

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/srodi/memtop/pkg/types"
	"github.com/srodi/memtop/pkg/units"
)

// Tick carries the wall clock and run-relative time stamped on every sample.
type Tick struct {
	Timestamp      time.Time
	ElapsedSeconds float64
}

type psRow struct {
	pid     string
	rss     string
	pmem    float64
	nlwp    int
	cmdline string
}

// ParseListing converts ps output into samples for one container. It returns the
// parsed samples and the number of non-header lines that were dropped.
func ParseListing(out []byte, dialect types.DialectKind, container string, tick Tick) ([]types.ProcessSample, int) {
	var (
		samples   []types.ProcessSample
		discarded int
	)
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isHeader(line) {
			continue
		}
		row, ok := parseLine(line, dialect)
		if !ok {
			discarded++
			continue
		}
		rss := units.NormalizeKB(row.rss)
		if rss == 0 {
			discarded++
			continue
		}
		samples = append(samples, types.ProcessSample{
			Timestamp:      tick.Timestamp,
			ElapsedSeconds: tick.ElapsedSeconds,
			Container:      container,
			PID:            row.pid,
			RSSKB:          rss,
			MemPercent:     row.pmem,
			Threads:        row.nlwp,
			Cmdline:        row.cmdline,
		})
	}
	return samples, discarded
}

func isHeader(line string) bool {
	first := splitFields(line, 2)
	return len(first) > 0 && strings.EqualFold(first[0], "pid")
}

// parseLine trusts the detected dialect first and falls back on the column shape
// when a RICH row does not carry numeric pmem/nlwp columns.
func parseLine(line string, dialect types.DialectKind) (psRow, bool) {
	if dialect == types.DialectMinimal {
		return parseMinimal(line)
	}

	fields := splitFields(line, 5)
	switch len(fields) {
	case 0, 1, 2:
		return psRow{}, false
	case 3, 4:
		return parseMinimal(line)
	}

	// Non-numeric pmem/nlwp means a "pid rss comm args" row: read it like MINIMAL,
	// so cmdline is args and comm is dropped, matching the BusyBox identity key.
	pmem, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || pmem < 0 || math.IsNaN(pmem) || math.IsInf(pmem, 0) {
		return parseMinimal(line)
	}
	nlwp, err := strconv.Atoi(fields[3])
	if err != nil || nlwp < 0 {
		return parseMinimal(line)
	}
	return psRow{pid: fields[0], rss: fields[1], pmem: pmem, nlwp: nlwp, cmdline: fields[4]}, true
}

// parseMinimal reads "pid rss comm args..." and keeps args as the command line.
func parseMinimal(line string) (psRow, bool) {
	fields := splitFields(line, 4)
	switch len(fields) {
	case 0, 1, 2:
		return psRow{}, false
	case 3:
		return psRow{pid: fields[0], rss: fields[1], cmdline: fields[2]}, true
	}
	return psRow{pid: fields[0], rss: fields[1], cmdline: fields[3]}, true
}

// splitFields splits on whitespace into at most n fields; the last field keeps
// the remainder of the line with its internal spacing.
func splitFields(s string, n int) []string {
	s = strings.TrimSpace(s)
	var fields []string
	for s != "" && len(fields) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		fields = append(fields, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		fields = append(fields, s)
	}
	return fields
}
