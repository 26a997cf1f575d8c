package collector

import (
	"fmt"
	"strings"

	"ctxdump/internal/fields"
)

// BrowserCollector reports the request URL and response status in play.
type BrowserCollector struct{}

func (BrowserCollector) Collect(in Input) (*fields.Map, error) {
	data := &fields.Map{}
	if req := requestOf(in); req != nil && req.URL != nil {
		data.Set("url", fmt.Sprintf("%s %s", req.Method, req.URL.String()))
	}
	if resp := responseOf(in); resp != nil {
		data.Set("status", resp.StatusCode)
	}
	return data, nil
}

// LogCollector reports the log lines captured for the test.
type LogCollector struct{}

func (LogCollector) Collect(in Input) (*fields.Map, error) {
	if len(in.Logs) == 0 {
		return nil, nil
	}
	return fields.New(fields.Pair{Key: "content", Value: strings.Join(in.Logs, "\n")}), nil
}
