package render

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ctxdump/internal/fields"
	"ctxdump/internal/trace"
)

// Status values written to reports.
const (
	StatusPassed = "PASSED"
	StatusFailed = "FAILED"
)

// Separator starts every record in a report file.
const Separator = "---"

// Report is the document produced once per dumped test.
type Report struct {
	Suite   string // package path of the test
	Name    string
	Status  string
	DataSet string // subtest path below the top-level test, if any
	Date    time.Time
	Steps   []trace.Step
}

// Fields returns the report as an ordered mapping.
func (r Report) Fields() *fields.Map {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = s.Fields()
	}

	m := fields.New(
		fields.Pair{Key: "test_class", Value: r.Suite},
		fields.Pair{Key: "test_name", Value: r.Name},
		fields.Pair{Key: "status", Value: r.Status},
		fields.Pair{Key: "data_set", Value: nil},
		fields.Pair{Key: "date", Value: r.Date.Format(DateLayout)},
		fields.Pair{Key: "steps", Value: steps},
	)
	if r.DataSet != "" {
		m.Set("data_set", r.DataSet)
	}
	return m
}

// RenderReport renders a full report.
func RenderReport(r Report) string {
	return Render(r.Fields())
}

// Persist appends a separator line, text and a blank line to path, creating
// the parent directory when needed. The file is never truncated.
func Persist(text, path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open report file: %w", err)
	}

	if _, err := f.WriteString(Separator + "\n" + text + "\n\n"); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
