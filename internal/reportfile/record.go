// Package reportfile reads the append-only report files written by ctxdump.
package reportfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ctxdump/internal/render"
)

// ErrNotFound is returned when a report file doesn't exist.
var ErrNotFound = errors.New("report file not found")

// Record is one dumped test read back from a report file.
type Record struct {
	Suite   string
	Name    string
	Status  string
	DataSet string
	Date    time.Time // zero when the date line is missing or malformed
	Body    string    // rendered text without the separator line
}

// TestName returns the Go test name, including the subtest path.
func (r Record) TestName() string {
	if r.DataSet == "" {
		return r.Name
	}
	return r.Name + "/" + r.DataSet
}

// ID returns "suite::name" followed by the data set when present.
func (r Record) ID() string {
	id := r.Suite + "::" + r.Name
	if r.DataSet != "" {
		id += " " + r.DataSet
	}
	return id
}

// Failed reports whether the test failed.
func (r Record) Failed() bool {
	return r.Status == render.StatusFailed
}

// Parse splits a report stream into records.
func Parse(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		records []Record
		lines   []string
		open    bool
	)
	flush := func() {
		if open {
			records = append(records, newRecord(lines))
		}
		lines = lines[:0]
	}
	for sc.Scan() {
		line := sc.Text()
		if line == render.Separator {
			flush()
			open = true
			continue
		}
		if open {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	flush()
	return records, nil
}

// ReadFile parses the report file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func newRecord(lines []string) Record {
	body := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	rec := Record{Body: body}
	for _, line := range lines {
		if line == "" || line[0] == ' ' {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch key {
		case "test_class":
			rec.Suite = value
		case "test_name":
			rec.Name = value
		case "status":
			rec.Status = value
		case "data_set":
			rec.DataSet = value
		case "date":
			if t, err := time.ParseInLocation(render.DateLayout, value, time.Local); err == nil {
				rec.Date = t
			}
		}
	}
	return rec
}

// Filter returns the records for which keep returns true.
func Filter(records []Record, keep func(Record) bool) []Record {
	var out []Record
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
