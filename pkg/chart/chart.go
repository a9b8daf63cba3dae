// Package chart reads a rendered summary back into numbers and draws text bar charts.
package chart

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerRe = regexp.MustCompile(`^\[(.+?)]`)
	rowRe    = regexp.MustCompile(`^\s*(\d+)\s+([\d.]+)`)
)

// ErrNoData is returned when no container survives parsing and exclusion.
var ErrNoData = errors.New("no containers to chart")

// Exclusion drops containers from the chart by exact name or name prefix.
type Exclusion struct {
	Names    []string `yaml:"exclude_names"`
	Prefixes []string `yaml:"exclude_prefixes"`
}

// DefaultExclusion skips the cli container and dev-* tooling containers.
func DefaultExclusion() Exclusion {
	return Exclusion{Names: []string{"cli"}, Prefixes: []string{"dev-"}}
}

// Excluded reports whether a container name is filtered out.
func (e Exclusion) Excluded(name string) bool {
	for _, n := range e.Names {
		if name == n {
			return true
		}
	}
	for _, p := range e.Prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Point is one PID's value in a container.
type Point struct {
	PID   string
	Value float64
}

// Series is one container's points in file order.
type Series struct {
	Container string
	Points    []Point
}

// Parse scans summary text. Rows before the first header or under an excluded
// header are ignored. A PID repeated within a section overwrites its earlier
// value in place.
func Parse(r io.Reader, excl Exclusion) ([]Series, error) {
	var (
		series  []Series
		current = -1
		index   map[string]int
	)
	byName := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := headerRe.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[1])
			if excl.Excluded(name) {
				current = -1
				continue
			}
			pos, ok := byName[name]
			if !ok {
				pos = len(series)
				byName[name] = pos
				series = append(series, Series{Container: name})
			}
			current = pos
			index = make(map[string]int)
			for i, p := range series[pos].Points {
				index[p.PID] = i
			}
			continue
		}
		if current < 0 {
			continue
		}
		m := rowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if i, ok := index[m[1]]; ok {
			series[current].Points[i].Value = value
			continue
		}
		index[m[1]] = len(series[current].Points)
		series[current].Points = append(series[current].Points, Point{PID: m[1], Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	out := series[:0]
	for _, s := range series {
		if len(s.Points) > 0 {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// Render draws a horizontal bar per PID, scaled to the largest value in each
// container. width is the maximum bar length in cells. Colors follow what w
// supports, so a pipe or file gets plain text.
func Render(w io.Writer, series []Series, width int) error {
	return renderWith(w, lipgloss.NewRenderer(w), series, width)
}

type palette struct {
	title lipgloss.Style
	bar   lipgloss.Style
	value lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		title: r.NewStyle().Foreground(lipgloss.Color("57")).Bold(true),
		bar:   r.NewStyle().Foreground(lipgloss.Color("229")),
		value: r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func renderWith(w io.Writer, r *lipgloss.Renderer, series []Series, width int) error {
	if width <= 0 {
		width = 50
	}
	styles := newPalette(r)
	var b strings.Builder
	for i, s := range series {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styles.title.Render(s.Container) + "\n")

		peak := 0.0
		pidWidth := 3
		for _, p := range s.Points {
			peak = max(peak, p.Value)
			pidWidth = max(pidWidth, len(p.PID))
		}
		for _, p := range s.Points {
			n := 0
			if peak > 0 {
				n = int(p.Value / peak * float64(width))
			}
			bar := ""
			if n > 0 {
				bar = styles.bar.Render(strings.Repeat("█", n))
			}
			fmt.Fprintf(&b, "  %*s | %s %s\n", pidWidth, p.PID, bar, styles.value.Render(fmt.Sprintf("%.1f", p.Value)))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
