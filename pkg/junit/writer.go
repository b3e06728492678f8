// Package junit writes aggregated results as a JUnit-style XML report with
// nested sub-test cases.
//
// Layout:
//
//	<testsuites name time tests failures errors>
//	  <testsuite name timestamp tests failures errors>
//	    <testcase name classname time>
//	      <failure message>stacktrace</failure> | <skipped message/>
//	      <subtestcase name testcase time> ... </subtestcase>
//
// Only top-level cases count toward tests/failures.
package junit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/dkoosis/tally/pkg/event"
	"github.com/dkoosis/tally/pkg/report"
)

// DefaultFilename is used when Options.Path is empty.
const DefaultFilename = "tally.junit.xml"

const timestampLayout = "2006-01-02T15:04:05"

// Options configures a Writer.
type Options struct {
	// Path of the report file. Parent directories are created.
	Path string
	// Now supplies suite timestamps for cases that carry no time.
	Now func() time.Time
	// Logger receives the report location on Finalize.
	Logger *slog.Logger
}

type suiteNode struct {
	xml         *etree.Element
	testCount   int
	failedCount int
}

// Writer is a report.Sink that builds the XML tree in memory and writes it
// to its file on Finalize.
type Writer struct {
	mu sync.Mutex

	path   string
	file   *os.File
	now    func() time.Time
	logger *slog.Logger

	doc        *etree.Document
	root       *etree.Element
	suites     map[string]*suiteNode
	suiteOrder []string
	cases      map[string]*etree.Element

	finalized bool
}

var _ report.Sink = (*Writer)(nil)

// New opens the destination file and returns an empty Writer. The file is
// opened up front so a bad path fails before any test runs rather than after
// the results are collected.
func New(opts Options) (*Writer, error) {
	path := opts.Path
	if path == "" {
		path = DefaultFilename
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating report directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening junit report: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version='1.0' encoding='utf-8'`)
	root := doc.CreateElement("testsuites")

	return &Writer{
		path:   path,
		file:   f,
		now:    now,
		logger: logger,
		doc:    doc,
		root:   root,
		suites: make(map[string]*suiteNode),
		cases:  make(map[string]*etree.Element),
	}, nil
}

// Path returns the report destination.
func (w *Writer) Path() string { return w.path }

// Document returns the in-memory XML tree.
func (w *Writer) Document() *etree.Document { return w.doc }

func (w *Writer) RunStarted(runName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.root.CreateAttr("name", runName)
	return nil
}

func (w *Writer) RunCompleted(totalElapsed float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var tests, failures int
	for _, name := range w.suiteOrder {
		s := w.suites[name]
		s.xml.CreateAttr("tests", strconv.Itoa(s.testCount))
		s.xml.CreateAttr("failures", strconv.Itoa(s.failedCount))
		s.xml.CreateAttr("errors", "0")
		tests += s.testCount
		failures += s.failedCount
	}

	w.root.CreateAttr("time", formatElapsed(totalElapsed))
	w.root.CreateAttr("tests", strconv.Itoa(tests))
	w.root.CreateAttr("failures", strconv.Itoa(failures))
	w.root.CreateAttr("errors", "0")
	return nil
}

func (w *Writer) CaseStarted(info report.CaseInfo) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	full := info.FullName()
	if _, ok := w.cases[full]; ok {
		return nil
	}
	suite := w.suite(info)
	tc := suite.xml.CreateElement("testcase")
	tc.CreateAttr("name", info.Name)
	w.cases[full] = tc
	return nil
}

// suite returns the node for info's suite, creating it on first sight.
func (w *Writer) suite(info report.CaseInfo) *suiteNode {
	if s, ok := w.suites[info.SuiteFullName]; ok {
		return s
	}
	ts := info.Time
	if ts.IsZero() {
		ts = w.now()
	}
	el := w.root.CreateElement("testsuite")
	el.CreateAttr("name", info.SuiteFullName)
	el.CreateAttr("timestamp", ts.Local().Format(timestampLayout))

	s := &suiteNode{xml: el}
	w.suites[info.SuiteFullName] = s
	w.suiteOrder = append(w.suiteOrder, info.SuiteFullName)
	return s
}

func (w *Writer) CaseResult(r report.CaseResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	suite, ok := w.suites[r.SuiteFullName]
	if !ok {
		return report.SuiteNotStarted(r.SuiteFullName)
	}
	tc, ok := w.cases[r.FullName()]
	if !ok {
		return report.CaseNotStarted(r.FullName())
	}

	tc.CreateAttr("name", r.Name)
	tc.CreateAttr("classname", r.ClassName)
	tc.CreateAttr("time", formatElapsed(r.Elapsed))
	addOutcome(tc, r.Status, r.Message, r.Stacktrace)

	suite.testCount++
	if r.Status == event.StatusFailed {
		suite.failedCount++
	}
	return nil
}

func (w *Writer) SubtestResult(r report.SubResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tc, ok := w.cases[r.CaseFullName]
	if !ok {
		return report.CaseNotStarted(r.CaseFullName)
	}

	sub := tc.CreateElement("subtestcase")
	sub.CreateAttr("name", r.Name)
	sub.CreateAttr("testcase", r.CaseFullName)
	sub.CreateAttr("time", formatElapsed(r.Elapsed))
	addOutcome(sub, r.Status, r.Message, r.Stacktrace)
	return nil
}

// addOutcome appends the failure or skipped child for a terminal status.
func addOutcome(el *etree.Element, status event.Status, message, stacktrace string) {
	switch status {
	case event.StatusFailed:
		f := el.CreateElement("failure")
		f.CreateAttr("message", message)
		f.SetText(stacktrace)
	case event.StatusSkipped, event.StatusAttempted:
		s := el.CreateElement("skipped")
		s.CreateAttr("message", message)
	}
}

// Finalize rewrites the file with the full tree and closes it. The file is
// closed even when writing fails. Later calls do nothing.
func (w *Writer) Finalize() (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return nil
	}
	w.finalized = true

	defer func() {
		if cerr := w.file.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing junit report: %w", cerr))
		}
	}()

	if _, err := w.writeTo(w.file); err != nil {
		return fmt.Errorf("writing junit report: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("flushing junit report: %w", err)
	}
	w.logger.Info("junit report written", "path", w.path)
	return nil
}

// WriteTo serializes the current tree, declaration included, to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeTo(dst)
}

// writeTo truncates and rewinds dst first when it is the Writer's own file.
func (w *Writer) writeTo(dst io.Writer) (int64, error) {
	if f, ok := dst.(*os.File); ok && f == w.file {
		if err := f.Truncate(0); err != nil {
			return 0, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
	}
	out := w.doc.Copy()
	// Escape newlines and tabs in attribute values so multi-line messages
	// survive attribute-value normalization in readers.
	out.WriteSettings.CanonicalAttrVal = true
	out.Indent(2)
	return out.WriteTo(dst)
}

func formatElapsed(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
