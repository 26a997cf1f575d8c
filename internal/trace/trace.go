// Package trace records the ordered timeline of instrumented actions taken
// during one test.
package trace

import (
	"fmt"
	"runtime"
	"time"

	"ctxdump/internal/fields"
)

// TimeLayout is the sub-second clock format used for step timestamps.
const TimeLayout = "15:04:05.000000"

// Step is one recorded instant of a test's timeline.
type Step struct {
	Seq     int
	Action  string
	Time    time.Time
	Memory  uint64      // bytes obtained from the OS
	Request string      // "METHOD URI", empty when no request was in play
	Status  *int        // response status code, nil when none
	Extra   *fields.Map // snapshot sections merged in at top level
}

// Fields returns the step as the ordered mapping written to reports.
func (s Step) Fields() *fields.Map {
	m := fields.New(
		fields.Pair{Key: "step", Value: s.Seq},
		fields.Pair{Key: "action", Value: s.Action},
		fields.Pair{Key: "timestamp", Value: s.Time.Format(TimeLayout)},
		fields.Pair{Key: "memory", Value: FormatMemory(s.Memory)},
		fields.Pair{Key: "request", Value: nil},
		fields.Pair{Key: "status", Value: nil},
	)
	if s.Request != "" {
		m.Set("request", s.Request)
	}
	if s.Status != nil {
		m.Set("status", *s.Status)
	}
	if s.Extra.Len() > 0 {
		m.Merge(s.Extra)
	}
	return m
}

// FormatMemory renders a byte count in megabytes with two decimals.
func FormatMemory(bytes uint64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/1024/1024)
}

// Trace accumulates steps. Sequence numbers start at 1 and stay contiguous
// for the lifetime of the Trace.
type Trace struct {
	steps  []Step
	now    func() time.Time
	memory func() uint64
}

// Option configures a Trace.
type Option func(*Trace)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Trace) { t.now = now }
}

// WithMemoryProbe overrides the memory usage source.
func WithMemoryProbe(probe func() uint64) Option {
	return func(t *Trace) { t.memory = probe }
}

// New creates an empty Trace.
func New(opts ...Option) *Trace {
	t := &Trace{now: time.Now, memory: SystemMemory}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add appends a step and returns it.
func (t *Trace) Add(action, request string, status *int, extra *fields.Map) Step {
	step := Step{
		Seq:     len(t.steps) + 1,
		Action:  action,
		Time:    t.now(),
		Memory:  t.memory(),
		Request: request,
		Status:  status,
		Extra:   extra,
	}
	t.steps = append(t.steps, step)
	return step
}

// Steps returns the recorded steps in call order.
func (t *Trace) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Len returns the number of recorded steps.
func (t *Trace) Len() int {
	return len(t.steps)
}

// SystemMemory reports the bytes of memory obtained from the OS by the Go
// runtime.
func SystemMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}
