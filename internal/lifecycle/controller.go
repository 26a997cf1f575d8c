package lifecycle

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ctxdump/internal/client"
	"ctxdump/internal/collector"
	"ctxdump/internal/decision"
	"ctxdump/internal/fields"
	"ctxdump/internal/logcapture"
	"ctxdump/internal/render"
	"ctxdump/internal/snapshot"
	"ctxdump/internal/trace"
)

// FinalStepLabel is the action of the step recorded when a report is written.
const FinalStepLabel = "Final State (Dump)"

// TB is the part of testing.TB a Controller uses.
type TB interface {
	Name() string
	Failed() bool
	Cleanup(func())
	Logf(format string, args ...any)
	Helper()
}

// Option configures one Controller.
type Option func(*Controller)

// WithMarker forces the dump marker on or off for this test, bypassing the
// Coordinator's marker lookup.
func WithMarker(marked bool) Option {
	return func(c *Controller) { c.marker = &marked }
}

// WithClient sets the client whose last exchange is used when a step has no
// explicit request or response.
func WithClient(cl collector.Client) Option {
	return func(c *Controller) { c.client = cl }
}

// WithLogCapture feeds captured log lines to the Log collector.
func WithLogCapture(capture *logcapture.Capture) Option {
	return func(c *Controller) { c.logs = capture }
}

// WithQueryLog feeds recorded statements to the Query collector.
func WithQueryLog(log collector.QueryLog) Option {
	return WithValue(collector.QueryLogKey, log)
}

// WithOutbox feeds sent emails to the Mailer collector.
func WithOutbox(box collector.Outbox) Option {
	return WithValue(collector.OutboxKey, box)
}

// WithValue passes an extra value to every collector.
func WithValue(key string, v any) Option {
	return func(c *Controller) { c.values[key] = v }
}

// WithSuite overrides the suite name written to the report. It defaults to
// the package path of the test function.
func WithSuite(suite string) Option {
	return func(c *Controller) { c.suite = suite }
}

// Controller records the steps of one test and writes its report.
type Controller struct {
	coord  *Coordinator
	t      TB
	suite  string
	marker *bool
	client collector.Client
	logs   *logcapture.Capture
	values map[string]any
	trace  *trace.Trace
	snap   *snapshot.Snapshotter

	mu        sync.Mutex
	state     State
	dumped    bool
	finalized bool
}

func newController(coord *Coordinator, t TB, opts ...Option) *Controller {
	c := &Controller{
		coord:  coord,
		t:      t,
		suite:  callerPackage(),
		values: make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}

	traceOpts := []trace.Option{trace.WithClock(coord.now)}
	if coord.memory != nil {
		traceOpts = append(traceOpts, trace.WithMemoryProbe(coord.memory))
	}
	c.trace = trace.New(traceOpts...)
	c.snap = snapshot.New(coord.logger.Named("snapshot"), coord.collectors()...)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Steps returns the steps recorded so far.
func (c *Controller) Steps() []trace.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trace.Steps()
}

// NewClient returns an HTTP client whose every exchange is recorded as a
// step. It also becomes the Controller's client.
func (c *Controller) NewClient(opts ...client.Option) (*client.Client, error) {
	hook := client.WithActionHook(func(req *http.Request, resp *http.Response) {
		c.AddStep(describe(req), req, resp)
	})
	cl, err := client.New(append(opts, hook)...)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.client = cl
	c.mu.Unlock()
	return cl, nil
}

func describe(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "API request"
	}
	return req.Method + " " + req.URL.RequestURI()
}

// LogStep records a labelled step without request details.
func (c *Controller) LogStep(label string) {
	c.AddStep(label, nil, nil)
}

// AddStep records a step. When req or resp is nil the client's last
// exchange is used instead.
func (c *Controller) AddStep(label string, req *http.Request, resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addStep(false, label, req, resp)
}

// addStep must be called with c.mu held. The lock is released while the
// collectors run so they may call back into the Controller.
func (c *Controller) addStep(full bool, label string, req *http.Request, resp *http.Response) {
	if c.state == Finalized {
		c.coord.logger.Debug("step after finalize ignored",
			zap.String("test", c.t.Name()),
			zap.String("action", label),
		)
		return
	}

	if req == nil && c.client != nil {
		req = c.client.LastRequest()
	}
	if resp == nil && c.client != nil {
		resp = c.client.LastResponse()
	}

	var request string
	if req != nil && req.URL != nil {
		request = req.Method + " " + req.URL.RequestURI()
	}
	var status *int
	if resp != nil {
		code := resp.StatusCode
		status = &code
	}

	var extra *fields.Map
	if full || c.shouldDump() {
		in := collector.Input{
			FullDump:    full,
			Request:     req,
			Response:    resp,
			Client:      c.client,
			Logs:        c.logs.Lines(),
			CaptureTime: c.coord.now().Format(trace.TimeLayout),
			Values:      c.values,
		}
		c.mu.Unlock()
		extra = c.snap.Collect(in)
		c.mu.Lock()
	}
	c.trace.Add(label, request, status, extra)
}

// ShouldDump reports whether this test's report will be written.
func (c *Controller) ShouldDump() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldDump()
}

func (c *Controller) shouldDump() bool {
	var marked bool
	if c.marker != nil {
		marked = *c.marker
	} else {
		marked = c.coord.marked(c.t.Name())
	}
	failed := c.t.Failed()
	dump := decision.Decide(c.coord.env, marked, failed)
	c.coord.logger.Debug("dump decision",
		zap.String("test", c.t.Name()),
		zap.Bool("marked", marked),
		zap.Bool("failed", failed),
		zap.Bool("dump", dump),
	)
	return dump
}

// Finalize records a failure for the re-run hint and writes the report when
// the test should be dumped. It runs once; Attach registers it as a cleanup.
func (c *Controller) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return nil
	}
	c.finalized = true

	if c.t.Failed() {
		c.coord.failures.Record(c.t.Name())
	}

	var err error
	if c.state == Running && c.shouldDump() {
		err = c.dump()
	}
	c.state = Finalized
	return err
}

// Dump records the final step and appends the report. Only the first call
// writes; later calls return nil.
func (c *Controller) Dump() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dump()
}

func (c *Controller) dump() error {
	if c.dumped {
		return nil
	}
	c.dumped = true
	c.state = Finalizing
	defer func() { c.state = Finalized }()

	c.addStep(true, FinalStepLabel, nil, nil)

	name, dataSet, _ := strings.Cut(c.t.Name(), "/")
	status := render.StatusPassed
	if c.t.Failed() {
		status = render.StatusFailed
	}
	report := render.Report{
		Suite:   c.suite,
		Name:    name,
		Status:  status,
		DataSet: dataSet,
		Date:    c.coord.now(),
		Steps:   c.trace.Steps(),
	}

	if err := c.coord.persist(render.RenderReport(report)); err != nil {
		c.coord.logger.Error("write report",
			zap.String("test", c.t.Name()),
			zap.String("path", c.coord.reportPath),
			zap.Error(err),
		)
		return fmt.Errorf("dump %s: %w", c.t.Name(), err)
	}
	c.coord.markProgress()
	c.coord.logger.Debug("report written",
		zap.String("test", c.t.Name()),
		zap.String("path", c.coord.reportPath),
	)
	return nil
}

// callerPackage returns the package path of the nearest Test, Benchmark,
// Fuzz or Example function on the stack.
func callerPackage() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if pkg, fn, ok := splitFuncName(frame.Function); ok && isTestFunc(fn) {
			return pkg
		}
		if !more {
			return ""
		}
	}
}

// splitFuncName splits "example.com/shop.TestCart.func1" into
// "example.com/shop" and "TestCart.func1".
func splitFuncName(full string) (pkg, fn string, ok bool) {
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return "", "", false
	}
	dot += slash + 1
	return full[:dot], full[dot+1:], true
}

func isTestFunc(fn string) bool {
	for _, prefix := range []string{"Test", "Benchmark", "Fuzz", "Example"} {
		if strings.HasPrefix(fn, prefix) && fn != "TestMain" {
			return true
		}
	}
	return false
}
