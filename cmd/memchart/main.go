// Command memchart draws per-container bar charts from a memtop summary file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/srodi/memtop/pkg/chart"
	"github.com/srodi/memtop/pkg/config"
)

const defaultSummary = "summary.txt"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("memchart failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("memchart", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config providing chart exclusions and width")
	width := fs.Int("width", 0, "maximum bar length in cells")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: memchart [flags] [summary.txt]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if *width > 0 {
		cfg.Chart.Width = *width
	}

	path := defaultSummary
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	series, err := chart.Parse(f, cfg.Chart.Exclusion)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return chart.Render(out, series, cfg.Chart.Width)
}
