// Package lifecycle ties context dumps to the lifetime of Go tests: a
// Controller per test and a Coordinator per test binary.
package lifecycle

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ctxdump/internal/collector"
	"ctxdump/internal/config"
	"ctxdump/internal/decision"
	"ctxdump/internal/errbuf"
	"ctxdump/internal/hint"
	"ctxdump/internal/render"
)

// Markers tells whether a test opted in to dumps regardless of outcome.
type Markers interface {
	Marked(test string) (bool, error)
}

// MarkerSet is a static Markers keyed by full or top-level test name.
type MarkerSet map[string]bool

func (m MarkerSet) Marked(test string) (bool, error) {
	if m[test] {
		return true, nil
	}
	top, _, _ := strings.Cut(test, "/")
	return m[top], nil
}

// M is the part of *testing.M that Main needs.
type M interface {
	Run() int
}

// Coordinator owns the state shared by every test of one test binary.
type Coordinator struct {
	cfg        config.Config
	env        decision.Env
	logger     *zap.Logger
	errors     *errbuf.Buffer
	markers    Markers
	failures   *hint.Registry
	collectors func() []collector.Collector
	progress   io.Writer
	reportPath string
	packages   []string
	now        func() time.Time
	memory     func() uint64

	writeMu    sync.Mutex
	finishOnce sync.Once
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithErrorBuffer shares buf with the application under test.
func WithErrorBuffer(buf *errbuf.Buffer) CoordinatorOption {
	return func(c *Coordinator) { c.errors = buf }
}

// WithMarkers replaces the marker lookup built from config.
func WithMarkers(m Markers) CoordinatorOption {
	return func(c *Coordinator) { c.markers = m }
}

// WithCollectors replaces the default collector set. fn is called once per
// test.
func WithCollectors(fn func() []collector.Collector) CoordinatorOption {
	return func(c *Coordinator) { c.collectors = fn }
}

// WithProgress sets where the per-dump progress marker is written.
func WithProgress(w io.Writer) CoordinatorOption {
	return func(c *Coordinator) { c.progress = w }
}

// WithReportPath overrides the report file path resolved from config.
func WithReportPath(path string) CoordinatorOption {
	return func(c *Coordinator) { c.reportPath = path }
}

// WithPackages sets the package patterns used in the re-run hint.
func WithPackages(pkgs ...string) CoordinatorOption {
	return func(c *Coordinator) { c.packages = pkgs }
}

// WithClock sets the clock used for steps and report dates.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithMemoryProbe sets the memory reading recorded on each step.
func WithMemoryProbe(probe func() uint64) CoordinatorOption {
	return func(c *Coordinator) { c.memory = probe }
}

// NewCoordinator creates a Coordinator from a resolved configuration.
func NewCoordinator(cfg config.Config, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		env:      cfg.Env,
		errors:   errbuf.New(),
		failures: hint.NewRegistry(),
		progress: os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.markers == nil {
		c.markers = MarkerSet(cfg.MarkedSet())
	}
	if c.collectors == nil {
		c.collectors = c.defaultCollectors
	}
	if c.reportPath == "" {
		c.reportPath = cfg.ReportPath(os.Getpid(), config.NewSuffix())
	}
	return c
}

// Load builds a Coordinator from the process environment and the config
// file in the working directory.
func Load(opts ...CoordinatorOption) (*Coordinator, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.Load(os.Environ(), wd)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	return NewCoordinator(cfg, append([]CoordinatorOption{WithLogger(logger)}, opts...)...), nil
}

func (c *Coordinator) defaultCollectors() []collector.Collector {
	return []collector.Collector{
		collector.BrowserCollector{},
		collector.LogCollector{},
		collector.NewErrorBufferCollector(c.errors),
		collector.MailerCollector{},
		collector.SessionCollector{},
		collector.QueryCollector{},
	}
}

// Logger returns the diagnostic logger.
func (c *Coordinator) Logger() *zap.Logger { return c.logger }

// Errors returns the runtime error buffer drained into reports.
func (c *Coordinator) Errors() *errbuf.Buffer { return c.errors }

// WatchErrors returns a copy of l whose warnings and errors also land in the
// runtime error buffer.
func (c *Coordinator) WatchErrors(l *zap.Logger) *zap.Logger {
	return c.errors.WrapLogger(l)
}

// Failures returns the failed-test registry.
func (c *Coordinator) Failures() *hint.Registry { return c.failures }

// ReportPath returns the file reports are appended to.
func (c *Coordinator) ReportPath() string { return c.reportPath }

// Attach starts tracking t and finalizes it from t.Cleanup.
func (c *Coordinator) Attach(t TB, opts ...Option) *Controller {
	t.Helper()
	ctrl := newController(c, t, opts...)
	t.Cleanup(func() {
		if err := ctrl.Finalize(); err != nil {
			t.Logf("ctxdump: %v", err)
		}
	})
	return ctrl
}

// Finish prints the re-run hint for failed tests to w. Only the first call
// prints.
func (c *Coordinator) Finish(w io.Writer) error {
	var err error
	c.finishOnce.Do(func() {
		err = c.failures.Render(w, c.packages...)
	})
	return err
}

// Main runs the tests and prints the re-run hint. Use it from TestMain:
//
//	func TestMain(m *testing.M) { os.Exit(coord.Main(m)) }
func (c *Coordinator) Main(m M) int {
	code := m.Run()
	if err := c.Finish(os.Stdout); err != nil {
		c.logger.Warn("print re-run hint", zap.Error(err))
	}
	_ = c.logger.Sync()
	return code
}

func (c *Coordinator) marked(test string) bool {
	ok, err := c.markers.Marked(test)
	if err != nil {
		c.logger.Debug("marker lookup failed", zap.String("test", test), zap.Error(err))
		return false
	}
	return ok
}

func (c *Coordinator) persist(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return render.Persist(text, c.reportPath)
}

func (c *Coordinator) markProgress() {
	if c.progress == nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = io.WriteString(c.progress, "D")
}
