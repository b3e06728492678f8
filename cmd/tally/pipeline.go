package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkoosis/tally/internal/detect"
	"github.com/dkoosis/tally/pkg/aggregate"
	"github.com/dkoosis/tally/pkg/event"
	"github.com/dkoosis/tally/pkg/testjson"
)

// input is one event producer: a named file or stdin. A non-empty scope
// is prefixed to every case id the input produces.
type input struct {
	name  string
	scope string
	r     io.Reader
}

// openInputs opens every named file up front, or falls back to stdin. With
// several files each gets its own id scope, since separate runs may reuse
// case ids.
func openInputs(paths []string, stdin io.Reader) ([]input, error) {
	if len(paths) == 0 {
		return []input{{name: "stdin", r: stdin}}, nil
	}
	inputs := make([]input, 0, len(paths))
	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			for _, in := range inputs {
				_ = in.r.(io.Closer).Close()
			}
			return nil, fmt.Errorf("opening input: %w", err)
		}
		in := input{name: path, r: f}
		if len(paths) > 1 {
			in.scope = strconv.Itoa(i)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// pipeline feeds events from concurrent producers into one aggregator.
//
// Run initialization is forwarded once. Run completions are held back and
// a single completion is sent by complete once every producer has finished,
// so no case or sub-test event can follow it.
type pipeline struct {
	agg     *aggregate.Aggregator
	runName string
	logger  *slog.Logger

	initOnce sync.Once

	mu         sync.Mutex
	runElapsed float64
	sawRunEnd  bool

	failed       atomic.Bool
	inconsistent atomic.Int64
	sinkErrors   atomic.Int64
}

func newPipeline(agg *aggregate.Aggregator, runName string, logger *slog.Logger) *pipeline {
	return &pipeline{agg: agg, runName: runName, logger: logger}
}

// consumeAll reads every input on its own goroutine and waits for all of them.
func (p *pipeline) consumeAll(ctx context.Context, inputs []input, format detect.Format) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, in := range inputs {
		g.Go(func() error {
			if c, ok := in.r.(io.Closer); ok && in.name != "stdin" {
				defer func() { _ = c.Close() }()
			}
			return p.consumeSafely(ctx, in, format)
		})
	}
	return g.Wait()
}

// consumeSafely turns a panic while handling one input into that input's
// error, so the remaining producers finish and the sinks are finalized.
func (p *pipeline) consumeSafely(ctx context.Context, in input, format detect.Format) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", in.name, r)
		}
	}()
	return p.consume(ctx, in, format)
}

func (p *pipeline) consume(ctx context.Context, in input, format detect.Format) error {
	br := bufio.NewReaderSize(in.r, 64*1024)
	if format == detect.Unknown {
		if _, err := br.Peek(1); errors.Is(err, io.EOF) {
			p.logger.Warn("empty input", "input", in.name)
			return nil
		}
		sniffed, err := detect.SniffReader(br)
		if err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
		format = sniffed
	}

	var (
		malformed int
		err       error
	)
	handle := p.scoped(in.scope)
	switch format {
	case detect.Lifecycle:
		malformed, err = event.Stream(ctx, br, handle)
	case detect.GoTestJSON:
		tr := testjson.NewTranslator(p.runName, handle)
		malformed, err = testjson.Stream(ctx, br, tr.Translate)
		if err == nil {
			err = tr.Finish()
		}
	default:
		return fmt.Errorf("%s: unrecognized input format (expected lifecycle events or go test -json)", in.name)
	}
	if malformed > 0 {
		p.logger.Warn("malformed lines skipped", "input", in.name, "count", malformed)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", in.name, err)
	}
	p.logger.Debug("input consumed", "input", in.name, "format", format)
	return nil
}

// scoped returns the handler for one input, rewriting case and sub-test
// ids into the input's scope. Events for one scoped id then come from a
// single producer only.
func (p *pipeline) scoped(scope string) event.ProcessFunc {
	if scope == "" {
		return p.handle
	}
	return func(e event.Event) error {
		switch v := e.(type) {
		case event.CaseEvent:
			v.ID = scope + ":" + v.ID
			e = v
		case event.SubEvent:
			v.ID = scope + ":" + v.ID
			e = v
		}
		return p.handle(e)
	}
}

// handle routes one event to the aggregator. Aggregation problems are
// logged and counted rather than returned, so one bad event does not stop
// the stream.
func (p *pipeline) handle(e event.Event) error {
	switch v := e.(type) {
	case event.RunEvent:
		switch v.Status {
		case event.RunInitializing:
			p.initOnce.Do(func() {
				if p.runName != "" {
					v.RunName = p.runName
				}
				p.check(p.agg.HandleRun(v))
			})
		case event.RunSuccess, event.RunFailed:
			p.holdRunEnd(v)
		}
		return nil
	case event.CaseEvent:
		if v.Status == event.StatusFailed {
			p.failed.Store(true)
		}
	}
	p.check(p.agg.Handle(e))
	return nil
}

func (p *pipeline) holdRunEnd(e event.RunEvent) {
	if e.Status == event.RunFailed {
		p.failed.Store(true)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sawRunEnd = true
	p.runElapsed = max(p.runElapsed, e.Elapsed)
}

func (p *pipeline) check(err error) {
	if err == nil {
		return
	}
	var ce *aggregate.ConsistencyError
	if errors.As(err, &ce) {
		p.inconsistent.Add(1)
		p.logger.Warn("inconsistent sub-test event",
			"id", ce.ID, "subtest", ce.Got, "active", ce.Active, "reason", ce.Reason)
		return
	}
	p.sinkErrors.Add(1)
	p.logger.Error("report sink error", "error", err)
}

// complete sends the single run completion. Without a run end from any
// producer, wall time stands in for the run's elapsed time.
func (p *pipeline) complete(wall time.Duration) {
	p.initOnce.Do(func() {
		p.check(p.agg.HandleRun(event.RunEvent{Status: event.RunInitializing, RunName: p.runName}))
	})

	p.mu.Lock()
	elapsed := p.runElapsed
	if !p.sawRunEnd {
		elapsed = wall.Seconds()
	}
	p.mu.Unlock()

	status := event.RunSuccess
	if p.failed.Load() {
		status = event.RunFailed
	}
	if open := p.agg.Pending(); open > 0 {
		p.logger.Warn("run completed with open cases", "count", open)
	}
	p.check(p.agg.HandleRun(event.RunEvent{Status: status, Elapsed: elapsed}))
}

// exitCode returns 1 when any case or run failed, a sub-test event was
// inconsistent, or a sink rejected a result, else 0.
func (p *pipeline) exitCode() int {
	if p.failed.Load() || p.inconsistent.Load() > 0 || p.sinkErrors.Load() > 0 {
		return 1
	}
	return 0
}
