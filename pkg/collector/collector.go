// Package collector is a report.Sink that keeps a case to sub-test outcome
// map and prints it as a tree when the run is finalized.
package collector

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"

	"github.com/dkoosis/tally/pkg/event"
	"github.com/dkoosis/tally/pkg/report"
)

// Label is the terminal outcome shown for a sub-test.
type Label string

const (
	LabelPassed  Label = "Passed"
	LabelFailed  Label = "Failed"
	LabelSkipped Label = "Skipped"
)

// Options configures a Collector.
type Options struct {
	Out   io.Writer // defaults to os.Stdout
	Theme Theme     // zero value uses MonoTheme
}

type caseEntry struct {
	order  []string
	labels map[string]Label
}

// Collector records the last reported label of every sub-test.
//
// Case and sub-test names are NFC-normalized, so a name reported once in
// composed and once in decomposed form is one entry and aligns by its
// composed width.
type Collector struct {
	mu    sync.Mutex
	out   io.Writer
	theme Theme

	order []string
	cases map[string]*caseEntry

	finalized bool
}

var _ report.Sink = (*Collector)(nil)

// New returns an empty Collector.
func New(opts Options) *Collector {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	theme := opts.Theme
	if theme.Name == "" {
		theme = MonoTheme()
	}
	return &Collector{
		out:   out,
		theme: theme,
		cases: make(map[string]*caseEntry),
	}
}

func (c *Collector) RunStarted(string) error { return nil }

func (c *Collector) RunCompleted(float64) error { return nil }

func (c *Collector) CaseResult(report.CaseResult) error { return nil }

func (c *Collector) CaseStarted(info report.CaseInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	full := norm.NFC.String(info.FullName())
	if _, ok := c.cases[full]; ok {
		return nil
	}
	c.cases[full] = &caseEntry{labels: make(map[string]Label)}
	c.order = append(c.order, full)
	return nil
}

func (c *Collector) SubtestResult(r report.SubResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cases[norm.NFC.String(r.CaseFullName)]
	if !ok {
		return report.CaseNotStarted(r.CaseFullName)
	}
	name := norm.NFC.String(r.Name)
	if _, seen := entry.labels[name]; !seen {
		entry.order = append(entry.order, name)
	}
	entry.labels[name] = labelFor(r.Status)
	return nil
}

// labelFor maps a sub-test status to its label. Statuses that are not a
// recognized outcome count as failures.
func labelFor(s event.Status) Label {
	switch s {
	case event.StatusPassed:
		return LabelPassed
	case event.StatusFailed:
		return LabelFailed
	case event.StatusSkipped, event.StatusAttempted:
		return LabelSkipped
	default:
		return LabelFailed
	}
}

// Results returns a copy of the recorded labels keyed by case full name,
// then sub-test name. Cases without sub-tests are included with an empty map.
func (c *Collector) Results() map[string]map[string]Label {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]Label, len(c.cases))
	for name, entry := range c.cases {
		subs := make(map[string]Label, len(entry.labels))
		for k, v := range entry.labels {
			subs[k] = v
		}
		out[name] = subs
	}
	return out
}

// Finalize prints every case that has at least one sub-test, in the order
// cases were first seen. Later calls do nothing.
func (c *Collector) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return nil
	}
	c.finalized = true

	var sb strings.Builder
	for _, name := range c.order {
		entry := c.cases[name]
		if len(entry.order) == 0 {
			continue
		}
		c.renderCase(&sb, name, entry)
	}
	if sb.Len() == 0 {
		return nil
	}
	if _, err := io.WriteString(c.out, sb.String()); err != nil {
		return fmt.Errorf("writing collector output: %w", err)
	}
	return nil
}

func (c *Collector) renderCase(sb *strings.Builder, name string, entry *caseEntry) {
	width := 0
	for _, sub := range entry.order {
		if w := runewidth.StringWidth(sub); w > width {
			width = w
		}
	}

	sb.WriteString(c.theme.Header.Render(name))
	sb.WriteString("\n")
	for _, sub := range entry.order {
		label := entry.labels[sub]
		sb.WriteString("  ")
		sb.WriteString(c.theme.Subtest.Render(runewidth.FillRight(sub, width)))
		sb.WriteString("  ")
		sb.WriteString(c.theme.Style(label).Render(c.theme.Icon(label) + " " + string(label)))
		sb.WriteString("\n")
	}
}
