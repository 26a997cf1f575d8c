package collector

import (
	"fmt"
	"strings"
	"time"

	"ctxdump/internal/errbuf"
	"ctxdump/internal/fields"
	"ctxdump/internal/trace"
)

// ErrorBufferCollector drains the runtime error buffer into one text block.
type ErrorBufferCollector struct {
	Buffer *errbuf.Buffer
}

// NewErrorBufferCollector creates a collector over buf.
func NewErrorBufferCollector(buf *errbuf.Buffer) *ErrorBufferCollector {
	return &ErrorBufferCollector{Buffer: buf}
}

func (c *ErrorBufferCollector) Collect(in Input) (*fields.Map, error) {
	if c.Buffer == nil {
		return nil, nil
	}
	entries := c.Buffer.Drain()
	if len(entries) == 0 {
		return nil, nil
	}

	captureTime := in.CaptureTime
	if captureTime == "" {
		captureTime = time.Now().Format(trace.TimeLayout)
	}

	lines := make([]string, 0, len(entries)*3)
	for _, e := range entries {
		at := e.Time.Format(trace.TimeLayout)
		lines = append(lines,
			fmt.Sprintf("[%s] [%s] %s", at, e.Level(), e.Message),
			fmt.Sprintf("  %s", at),
			fmt.Sprintf("  %s (%s:%d)", e.Message, e.File, e.Line),
		)
	}

	header := fmt.Sprintf("[%s] [ctxdump] runtime errors (in memory)\n", captureTime)
	return fields.New(fields.Pair{Key: "content", Value: header + strings.Join(lines, "\n")}), nil
}
