// Package errbuf holds runtime error events intercepted during a test run
// until a collector drains them into a report.
package errbuf

import (
	"sync"
	"time"
)

// Severity classifies an intercepted error.
type Severity int

const (
	SeverityDebug Severity = iota + 1
	SeverityNotice
	SeverityWarning
	SeverityError
	SeverityDevPanic
	SeverityPanic
	SeverityFatal
	SeverityDeprecated
)

// String returns the label written to reports.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "Debug"
	case SeverityNotice:
		return "Notice"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	case SeverityDevPanic:
		return "Dev Panic"
	case SeverityPanic:
		return "Panic"
	case SeverityFatal:
		return "Fatal"
	case SeverityDeprecated:
		return "Deprecated"
	default:
		return "Unknown"
	}
}

// Entry is one intercepted error.
type Entry struct {
	Time     time.Time
	Severity Severity
	Message  string
	File     string
	Line     int
}

// Level returns the severity label.
func (e Entry) Level() string {
	return e.Severity.String()
}

// Buffer is a FIFO of entries. Drain returns and clears in one step so the
// same entry is never reported for two tests.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{now: time.Now}
}

// Push appends an entry stamped with the current time.
func (b *Buffer) Push(sev Severity, message, file string, line int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	b.entries = append(b.entries, Entry{
		Time:     now(),
		Severity: sev,
		Message:  message,
		File:     file,
		Line:     line,
	})
}

// Drain returns all buffered entries and empties the buffer.
func (b *Buffer) Drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.entries
	b.entries = nil
	return entries
}

// Entries returns a copy of the buffered entries without clearing them.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
