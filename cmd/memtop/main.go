package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/srodi/memtop/pkg/aggregate"
	"github.com/srodi/memtop/pkg/collector/container"
	"github.com/srodi/memtop/pkg/collector/memory"
	"github.com/srodi/memtop/pkg/config"
	"github.com/srodi/memtop/pkg/metrics"
	"github.com/srodi/memtop/pkg/report"
	"github.com/srodi/memtop/pkg/sampler"
	"github.com/srodi/memtop/pkg/store"
	"github.com/srodi/memtop/pkg/types"
	"github.com/srodi/memtop/pkg/ui"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "memtop: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("memtop failed", "error", err)
		os.Exit(1)
	}
}

// parseConfig loads the optional YAML file and lets explicitly set flags win over it.
func parseConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("memtop", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	interval := fs.Duration("interval", config.DefaultInterval, "sampling interval (e.g. 1s, 500ms)")
	execTimeout := fs.Duration("exec-timeout", 0, "per-command timeout for runtime calls (default: interval)")
	topK := fs.Int("topk", types.DefaultTopK, "number of processes to report per container")
	policy := fs.String("policy", aggregate.Cumulative.String(), "aggregation policy: cumulative or peak")
	runtime := fs.String("runtime", config.DefaultRuntime, "container runtime CLI (docker, podman)")
	summary := fs.String("summary", "", "also write the final report to this file")
	unit := fs.String("unit", string(report.MiB), "report unit: MiB or GiB")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	count := fs.Int("count", 0, "stop after this many ticks (0 runs until interrupted)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: memtop [flags] [log.csv]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected at most one log path, got %d arguments", fs.NArg())
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	var errs []error
	timeoutFollowsInterval := cfg.ExecTimeout == cfg.Interval
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			cfg.Interval = *interval
		case "exec-timeout":
			cfg.ExecTimeout = *execTimeout
		case "topk":
			cfg.TopN = *topK
		case "policy":
			p, err := aggregate.ParsePolicy(*policy)
			errs = append(errs, err)
			cfg.Policy = p
		case "runtime":
			cfg.Runtime = *runtime
		case "summary":
			cfg.SummaryPath = *summary
		case "unit":
			cfg.ReportUnit = *unit
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "count":
			cfg.MaxTicks = *count
		}
	})
	if timeoutFollowsInterval && !isSet(fs, "exec-timeout") {
		cfg.ExecTimeout = cfg.Interval
	}
	if fs.NArg() == 1 {
		cfg.LogPath = fs.Arg(0)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := container.NewClient(cfg.Runtime, cfg.ExecTimeout)
	if err != nil {
		return err
	}
	sampleLog, err := store.Open(cfg.LogPath)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Warn("metrics endpoint stopped", "error", err)
			}
		}()
	}

	stdoutFD := int(os.Stdout.Fd())
	tty := report.IsTerminal(stdoutFD)
	if tty {
		fmt.Print(ui.Banner())
		fmt.Print(ui.Intro(cfg.Interval, cfg.Policy.String(), cfg.LogPath))
		restore := suppressEcho(int(os.Stdin.Fd()), logger)
		defer restore()
	}

	agg := aggregate.New(cfg.Policy)
	loop := sampler.New(sampler.Options{
		Interval:   cfg.Interval,
		Collector:  memory.NewCollector(client, logger),
		Aggregator: agg,
		Sink:       sampleLog,
		Metrics:    m,
		Logger:     logger,
		MaxTicks:   cfg.MaxTicks,
		Report: func(records []types.AggregateRecord) error {
			opts := report.Options{
				TopN:   cfg.TopN,
				Unit:   cfg.Unit(),
				Policy: cfg.Policy,
				Width:  report.TerminalWidth(stdoutFD),
				Styled: tty,
			}
			return writeReport(os.Stdout, cfg.SummaryPath, records, opts)
		},
	})

	logger.Info("sampling started",
		"runtime", cfg.Runtime,
		"interval", cfg.Interval,
		"policy", cfg.Policy,
		"log", sampleLog.Path())
	started := time.Now()
	err = loop.Run(ctx)
	logSummary(logger, loop.Ticks(), sampleLog.Rows(), agg.Len(), m.Totals(), time.Since(started))
	return err
}

// logSummary emits the one-line shutdown record with the run's counters.
func logSummary(logger *slog.Logger, ticks int, rows int64, identities int, totals metrics.Totals, took time.Duration) {
	logger.Info("sampling finished",
		"ticks", ticks,
		"rows", rows,
		"identities", identities,
		"samples", totals.Samples,
		"lines_discarded", totals.LinesDiscarded,
		"containers_skipped", totals.ContainersSkipped,
		"discovery_failures", totals.DiscoveryFailures,
		"duration", took.Round(time.Millisecond))
}

// writeReport renders the summary to out and, when summaryPath is set, an unstyled
// copy to that file for the chart reader.
func writeReport(out io.Writer, summaryPath string, records []types.AggregateRecord, opts report.Options) error {
	sections := report.BuildSections(records, opts.TopN)
	if err := report.Render(out, sections, opts); err != nil {
		return err
	}
	if summaryPath == "" {
		return nil
	}

	opts.Styled = false
	var buf bytes.Buffer
	if err := report.Render(&buf, sections, opts); err != nil {
		return err
	}
	if err := os.WriteFile(summaryPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
