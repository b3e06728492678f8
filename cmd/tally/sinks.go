package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dkoosis/tally/internal/config"
	"github.com/dkoosis/tally/pkg/collector"
	"github.com/dkoosis/tally/pkg/junit"
	"github.com/dkoosis/tally/pkg/report"
)

// buildSinks constructs one sink per notifier. Sinks open their outputs
// here, before any input is read; on failure the ones already built are
// finalized to release their files.
func buildSinks(cfg *config.ResolvedConfig, stdout io.Writer, logger *slog.Logger) ([]report.Sink, error) {
	var sinks []report.Sink
	for _, n := range cfg.Notifiers {
		var (
			s   report.Sink
			err error
		)
		switch n.Type {
		case config.NotifierJUnit:
			s, err = junit.New(junit.Options{Path: n.Path, Logger: logger})
		case config.NotifierCollector:
			s = collector.New(collector.Options{Out: stdout, Theme: selectTheme(cfg, stdout)})
		default:
			err = fmt.Errorf("unknown notifier type %q", n.Type)
		}
		if err != nil {
			for _, built := range sinks {
				_ = built.Finalize()
			}
			return nil, err
		}
		logger.Debug("notifier enabled", "type", n.Type, "path", n.Path)
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// selectTheme honors NO_COLOR and falls back to mono when stdout is not a terminal.
func selectTheme(cfg *config.ResolvedConfig, w io.Writer) collector.Theme {
	if cfg.NoColor || !isTTYWriter(w) {
		return collector.MonoTheme()
	}
	return collector.ThemeByName(cfg.Theme)
}
