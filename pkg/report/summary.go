// Package report ranks aggregated processes per container and renders the summary table.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/types"
)

const (
	defaultWidth = 140
	bold         = "\033[1m"
	reset        = "\033[0m"
)

// Unit scales accumulated kilobytes for display.
type Unit string

const (
	MiB Unit = "MiB"
	GiB Unit = "GiB"
)

func (u Unit) divisor() float64 {
	if u == GiB {
		return 1024 * 1024
	}
	return 1024
}

// ParseUnit accepts MiB or GiB, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mib", "mb", "m":
		return MiB, nil
	case "gib", "gb", "g":
		return GiB, nil
	}
	return MiB, fmt.Errorf("unknown report unit %q", s)
}

// Section is one container's ranked processes.
type Section struct {
	Container string
	Rows      []types.AggregateRecord
}

// Options controls summary rendering.
type Options struct {
	TopN   int
	Unit   Unit
	Policy aggregate.Policy
	// Width of separator lines; zero uses 140 columns.
	Width int
	// Styled wraps container headers in bold. Only use it on a terminal.
	Styled bool
}

// BuildSections groups records by container, ranks each group by accumulated RSS
// and keeps topN. Equal values keep the order the records arrived in.
func BuildSections(records []types.AggregateRecord, topN int) []Section {
	groups := make(map[string][]types.AggregateRecord)
	for _, rec := range records {
		groups[rec.Container] = append(groups[rec.Container], rec)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	sections := make([]Section, 0, len(names))
	for _, name := range names {
		rows := groups[name]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].AccumulatedRSSKB > rows[j].AccumulatedRSSKB })
		if topN > 0 && len(rows) > topN {
			rows = rows[:topN]
		}
		sections = append(sections, Section{Container: name, Rows: rows})
	}
	return sections
}

// ValueLabel names the size column for the active policy and unit.
func ValueLabel(p aggregate.Policy, u Unit) string {
	if p == aggregate.Peak {
		return fmt.Sprintf("PeakRSS[%s]", u)
	}
	return fmt.Sprintf("ΣRSS[%s]", u)
}

// Render writes one table per section. Every data line starts with the PID
// followed by the scaled size so the text can be parsed back.
func Render(w io.Writer, sections []Section, opts Options) error {
	if opts.Unit == "" {
		opts.Unit = MiB
	}
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	sep := strings.Repeat("-", width)

	if len(sections) == 0 {
		_, err := fmt.Fprintln(w, "No process samples recorded")
		return err
	}

	var b strings.Builder
	for _, sec := range sections {
		header := "[" + sec.Container + "]"
		if opts.Styled {
			header = bold + header + reset
		}
		fmt.Fprintf(&b, "\n%s\n", header)
		fmt.Fprintf(&b, "%s %s %s %s  CMDLINE\n",
			padRight("PID", 8), padLeft(ValueLabel(opts.Policy, opts.Unit), 12), padLeft("%MEM", 8), padLeft("NLWP", 5))
		b.WriteString(sep + "\n")
		for _, row := range sec.Rows {
			value := float64(row.AccumulatedRSSKB) / opts.Unit.divisor()
			fmt.Fprintf(&b, "%-8s %12.1f %8.1f %5d  %s\n", row.PID, value, row.LastMemPercent, row.LastThreads, sanitizeTerminal(row.Cmdline))
		}
		b.WriteString(sep + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// TerminalWidth returns the column count of fd, or 140 when fd is not a terminal.
func TerminalWidth(fd int) int {
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// IsTerminal reports whether fd is attached to a terminal.
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

func padLeft(s string, n int) string {
	if pad := n - utf8.RuneCountInString(s); pad > 0 {
		return strings.Repeat(" ", pad) + s
	}
	return s
}

func padRight(s string, n int) string {
	if pad := n - utf8.RuneCountInString(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}
