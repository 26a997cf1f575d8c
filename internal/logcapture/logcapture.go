// Package logcapture keeps the log entries an application writes during a
// test and formats them for reports.
package logcapture

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ctxdump/internal/trace"
)

const (
	maxContextValue = 500
	maxEncoded      = 5000
)

// Capture holds observed entries.
type Capture struct {
	logs *observer.ObservedLogs
}

// New returns a logger that records entries at or above level, and the
// Capture reading them.
func New(level zapcore.LevelEnabler) (*zap.Logger, *Capture) {
	core, logs := observer.New(level)
	return zap.New(core), &Capture{logs: logs}
}

// Tee returns base extended to also record into a new Capture.
func Tee(base *zap.Logger, level zapcore.LevelEnabler) (*zap.Logger, *Capture) {
	core, logs := observer.New(level)
	if base == nil {
		return zap.New(core), &Capture{logs: logs}
	}
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, core)
	})), &Capture{logs: logs}
}

// Len returns the number of captured entries.
func (c *Capture) Len() int {
	if c == nil {
		return 0
	}
	return c.logs.Len()
}

// Lines formats every captured entry without consuming them.
func (c *Capture) Lines() []string {
	if c == nil {
		return nil
	}
	entries := c.logs.All()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, Format(e))
	}
	return lines
}

// Reset drops all captured entries.
func (c *Capture) Reset() {
	if c != nil {
		c.logs.TakeAll()
	}
}

// Format renders one entry as a header line, the time and raw message, then
// one indented line per context field.
func Format(e observer.LoggedEntry) string {
	at := e.Time.Format(trace.TimeLayout)
	values := fieldValues(e.Context)

	msg := interpolate(e.Message, values)
	var line string
	if e.LoggerName != "" {
		line = fmt.Sprintf("[%s] [%s] %s: %s", at, e.Level.CapitalString(), e.LoggerName, msg)
	} else {
		line = fmt.Sprintf("[%s] [%s] %s", at, e.Level.CapitalString(), msg)
	}

	var b strings.Builder
	b.WriteString(line)
	b.WriteString("\n  ")
	b.WriteString(at)
	b.WriteString("\n  ")
	b.WriteString(e.Message)
	for _, kv := range values {
		s := contextString(kv.value)
		if len(s) > maxContextValue {
			s = s[:maxContextValue] + "..."
		}
		fmt.Fprintf(&b, "\n  %s: %s", kv.key, s)
	}
	return b.String()
}

type keyValue struct {
	key   string
	value any
}

// fieldValues decodes fields in the order they were logged.
func fieldValues(fs []zapcore.Field) []keyValue {
	out := make([]keyValue, 0, len(fs))
	for _, f := range fs {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		if v, ok := enc.Fields[f.Key]; ok {
			out = append(out, keyValue{key: f.Key, value: v})
		}
		extra := make([]string, 0, len(enc.Fields))
		for k := range enc.Fields {
			if k != f.Key {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		for _, k := range extra {
			out = append(out, keyValue{key: k, value: enc.Fields[k]})
		}
	}
	return out
}

func interpolate(msg string, values []keyValue) string {
	if !strings.Contains(msg, "{") {
		return msg
	}
	pairs := make([]string, 0, len(values)*2)
	for _, kv := range values {
		pairs = append(pairs, "{"+kv.key+"}", placeholderString(kv.value))
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func placeholderString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case map[string]any, []any:
		return encode(val)
	default:
		return fmt.Sprint(val)
	}
}

func contextString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		return encode(val)
	default:
		return fmt.Sprint(val)
	}
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	s := string(data)
	if len(s) > maxEncoded {
		s = s[:maxEncoded] + "... (truncated)"
	}
	return s
}
