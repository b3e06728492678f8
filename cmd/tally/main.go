// tally aggregates test-lifecycle event streams into per-case and
// per-sub-test results and writes them to report sinks.
//
// Usage:
//
//	tally [flags] [file ...]
//	go test -json ./... | tally -collector
//	tally -junit out/results.xml run-a.ndjson run-b.ndjson
//
// Accepts two input formats, detected per input from its first line:
//   - lifecycle NDJSON (one run/case/sub event per line)
//   - go test -json (translated into lifecycle events)
//
// Exit codes: 0 clean, 1 failed cases or inconsistent sub-test events,
// 2 usage, configuration or I/O errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/dkoosis/tally/internal/config"
	"github.com/dkoosis/tally/internal/detect"
	"github.com/dkoosis/tally/internal/logging"
	"github.com/dkoosis/tally/internal/version"
	"github.com/dkoosis/tally/pkg/aggregate"
	"github.com/dkoosis/tally/pkg/collector"
	"github.com/dkoosis/tally/pkg/report"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	start := time.Now()

	fs := flag.NewFlagSet("tally", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cli config.CliFlags
	fs.StringVar(&cli.ConfigPath, "config", "", "Config file (default .tally.yaml, then ~/.config/tally/.tally.yaml)")
	formatFlag := fs.String("format", "auto", "Input format: auto, events, gotest")
	fs.StringVar(&cli.JUnitPath, "junit", "", "JUnit XML report path")
	fs.BoolVar(&cli.NoJUnit, "no-junit", false, "Disable the JUnit XML report")
	fs.BoolVar(&cli.Collector, "collector", false, "Print sub-test outcomes when the run completes")
	fs.StringVar(&cli.RunName, "run-name", "", "Run name recorded in reports")
	fs.StringVar(&cli.OutputDir, "output-dir", "", "Directory for relative report paths")
	fs.StringVar(&cli.ThemeName, "theme", "", "Theme: "+strings.Join(collector.ThemeNames(), ", "))
	fs.BoolVar(&cli.NoColor, "no-color", false, "Disable colors")
	fs.StringVar(&cli.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "no-color" {
			cli.NoColorSet = true
		}
	})

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	format := detect.ParseFormat(*formatFlag)
	if format == detect.Unknown && *formatFlag != "auto" {
		fmt.Fprintf(stderr, "tally: unknown format %q (expected auto, events, gotest)\n", *formatFlag)
		return 2
	}

	cfg, err := config.ResolveConfig(cli)
	if err != nil {
		fmt.Fprintf(stderr, "tally: %v\n", err)
		return 2
	}

	logger := logging.New(stderr, cfg.LogLevel).With("run_id", uuid.NewString())
	if cfg.ConfigPath != "" {
		logger.Debug("config loaded", "path", cfg.ConfigPath)
	}

	sinks, err := buildSinks(cfg, stdout, logger)
	if err != nil {
		fmt.Fprintf(stderr, "tally: %v\n", err)
		return 2
	}
	sink := report.Multi(sinks...)

	inputs, err := openInputs(fs.Args(), stdin)
	if err != nil {
		fmt.Fprintf(stderr, "tally: %v\n", err)
		if ferr := sink.Finalize(); ferr != nil {
			logger.Error("finalizing reports", "error", ferr)
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	// Close stdin on cancel to unblock the scanner goroutine; a bufio.Reader
	// wrapped around it cannot be closed by the stream readers themselves.
	if c, ok := stdin.(io.Closer); ok {
		stopClose := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stopClose()
	}

	return process(ctx, sink, inputs, format, cfg.RunName, logger, start)
}

// process runs every input through one aggregator into sink. sink is
// finalized on every return path, a panic in the pipeline included, so the
// report file is always written.
func process(ctx context.Context, sink report.Sink, inputs []input, format detect.Format, runName string, logger *slog.Logger, start time.Time) (code int) {
	defer func() {
		if err := sink.Finalize(); err != nil {
			logger.Error("finalizing reports", "error", err)
			code = 2
		}
	}()

	p := newPipeline(aggregate.New(sink, aggregate.WithLogger(logger)), runName, logger)
	if err := p.consumeAll(ctx, inputs, format); err != nil {
		logger.Error("reading input", "error", err)
		p.complete(time.Since(start))
		return 2
	}
	p.complete(time.Since(start))
	return p.exitCode()
}

// isTTYWriter reports whether w is a terminal.
func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
