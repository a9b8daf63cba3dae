package report

import (
	"bytes"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/types"
)

func record(container, pid, cmdline string, acc uint64) types.AggregateRecord {
	return types.AggregateRecord{
		Identity:         types.Identity{Container: container, PID: pid, Cmdline: cmdline},
		AccumulatedRSSKB: acc,
		LastMemPercent:   0.5,
		LastThreads:      2,
	}
}

func TestBuildSectionsStableTopN(t *testing.T) {
	records := []types.AggregateRecord{
		record("app", "1", "first", 300),
		record("app", "2", "small", 50),
		record("app", "3", "second", 300),
	}
	sections := BuildSections(records, 2)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	rows := sections[0].Rows
	if len(rows) != 2 {
		t.Fatalf("expected top 2 rows, got %d", len(rows))
	}
	if rows[0].PID != "1" || rows[1].PID != "3" {
		t.Fatalf("ties must keep first-observed order, got %+v", rows)
	}
}

func TestBuildSectionsSortsContainers(t *testing.T) {
	records := []types.AggregateRecord{
		record("zeta", "1", "a", 1),
		record("alpha", "1", "a", 1),
		record("mid", "1", "a", 1),
	}
	sections := BuildSections(records, 0)
	got := []string{sections[0].Container, sections[1].Container, sections[2].Container}
	if strings.Join(got, ",") != "alpha,mid,zeta" {
		t.Fatalf("unexpected container order %v", got)
	}
}

func TestRenderIsParseable(t *testing.T) {
	sections := BuildSections([]types.AggregateRecord{
		record("api", "12", "java -jar app.jar", 2048),
		record("api", "7", "sh", 512),
	}, 10)

	var buf bytes.Buffer
	if err := Render(&buf, sections, Options{TopN: 10, Unit: MiB, Width: 20}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	headerRe := regexp.MustCompile(`(?m)^\[(.+?)]`)
	if m := headerRe.FindStringSubmatch(out); m == nil || m[1] != "api" {
		t.Fatalf("missing container header in %q", out)
	}
	rowRe := regexp.MustCompile(`(?m)^\s*(\d+)\s+([\d.]+)`)
	rows := rowRe.FindAllStringSubmatch(out, -1)
	if len(rows) != 2 {
		t.Fatalf("expected 2 parseable rows, got %d in %q", len(rows), out)
	}
	if rows[0][1] != "12" || rows[0][2] != "2.0" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
	if rows[1][1] != "7" || rows[1][2] != "0.5" {
		t.Fatalf("unexpected second row %v", rows[1])
	}
	if !strings.Contains(out, "ΣRSS[MiB]") {
		t.Fatalf("expected cumulative label in %q", out)
	}
	if !strings.Contains(out, strings.Repeat("-", 20)+"\n") {
		t.Fatalf("expected separator of width 20")
	}
	if strings.Contains(out, bold) {
		t.Fatalf("unstyled output must not contain ANSI codes")
	}
}

func TestRenderPeakGiBStyled(t *testing.T) {
	sections := BuildSections([]types.AggregateRecord{record("db", "1", "postgres", 3 * 1024 * 1024)}, 10)
	var buf bytes.Buffer
	if err := Render(&buf, sections, Options{Unit: GiB, Policy: aggregate.Peak, Styled: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, bold+"[db]"+reset) {
		t.Fatalf("expected bold header, got %q", out)
	}
	if !strings.Contains(out, "PeakRSS[GiB]") {
		t.Fatalf("expected peak label, got %q", out)
	}
	if !strings.Contains(out, "         3.0") {
		t.Fatalf("expected 3.0 GiB value, got %q", out)
	}
	if !strings.Contains(out, strings.Repeat("-", defaultWidth)) {
		t.Fatalf("expected default separator width")
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, nil, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No process samples") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}

func TestHeaderColumnsAlign(t *testing.T) {
	var buf bytes.Buffer
	_ = Render(&buf, BuildSections([]types.AggregateRecord{record("a", "1", "x", 1024)}, 1), Options{Width: 10})
	lines := strings.Split(buf.String(), "\n")
	header, row := lines[2], lines[4]
	if !strings.HasPrefix(header, "PID      ") {
		t.Fatalf("unexpected header %q", header)
	}
	// the size column ends at the same rune offset on both lines
	if got, want := len([]rune(header[:strings.Index(header, "]")+1])), len([]rune(row[:strings.Index(row, "1.0")+3])); got != want {
		t.Fatalf("size column misaligned: header ends at %d, row at %d", got, want)
	}
}

func TestParseUnit(t *testing.T) {
	cases := map[string]Unit{"": MiB, "MiB": MiB, "mb": MiB, "GiB": GiB, "g": GiB}
	for input, want := range cases {
		got, err := ParseUnit(input)
		if err != nil || got != want {
			t.Fatalf("ParseUnit(%q): got %q err=%v", input, got, err)
		}
	}
	if _, err := ParseUnit("TiB"); err == nil {
		t.Fatalf("expected error for unsupported unit")
	}
}

func TestTerminalWidthFallsBack(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notatty")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	if w := TerminalWidth(int(f.Fd())); w != defaultWidth {
		t.Fatalf("expected fallback width %d, got %d", defaultWidth, w)
	}
	if IsTerminal(int(f.Fd())) {
		t.Fatalf("regular file reported as terminal")
	}
}

func TestRenderEscapesControlCharactersInCmdline(t *testing.T) {
	sections := BuildSections([]types.AggregateRecord{record("app", "4", "evil\x1b[2J\nname", 2048)}, 10)
	var buf bytes.Buffer
	if err := Render(&buf, sections, Options{Styled: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "\x1b[2J") {
		t.Fatalf("raw escape sequence reached the terminal: %q", out)
	}
	if !strings.Contains(out, `evil\x1b[2J\x0aname`) {
		t.Fatalf("expected visible escapes, got %q", out)
	}
}

func TestSanitizeTerminal(t *testing.T) {
	cases := map[string]string{
		"python app.py --port 80": "python app.py --port 80",
		"a\tb":                    "a\tb",
		"nul:\x00":                `nul:\x00`,
		"bad:\xff":                `bad:\xff`,
		"c1:\u0085":               `c1:\x85`,
		"unicode ✓ ok":            "unicode ✓ ok",
	}
	for in, want := range cases {
		if got := sanitizeTerminal(in); got != want {
			t.Fatalf("sanitizeTerminal(%q) = %q, want %q", in, got, want)
		}
	}
}
