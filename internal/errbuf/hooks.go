package errbuf

import (
	"bytes"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SeverityForLevel maps a zap level onto the buffer's severities.
func SeverityForLevel(l zapcore.Level) Severity {
	switch l {
	case zapcore.DebugLevel:
		return SeverityDebug
	case zapcore.InfoLevel:
		return SeverityNotice
	case zapcore.WarnLevel:
		return SeverityWarning
	case zapcore.ErrorLevel:
		return SeverityError
	case zapcore.DPanicLevel:
		return SeverityDevPanic
	case zapcore.PanicLevel:
		return SeverityPanic
	case zapcore.FatalLevel:
		return SeverityFatal
	default:
		return 0
	}
}

// ZapHook returns a hook for zap.Hooks that pushes every entry at warn level
// or above into the buffer.
func (b *Buffer) ZapHook() func(zapcore.Entry) error {
	return func(e zapcore.Entry) error {
		if e.Level < zapcore.WarnLevel {
			return nil
		}
		file, line := "", 0
		if e.Caller.Defined {
			file, line = e.Caller.File, e.Caller.Line
		}
		b.Push(SeverityForLevel(e.Level), e.Message, file, line)
		return nil
	}
}

// WrapLogger returns a copy of l that also feeds the buffer.
func (b *Buffer) WrapLogger(l *zap.Logger) *zap.Logger {
	return l.WithOptions(zap.Hooks(b.ZapHook()))
}

// sourcePrefix matches the "file.go:12: " prefix written by the standard log
// package with Lshortfile or Llongfile.
var sourcePrefix = regexp.MustCompile(`^(\S+\.go):(\d+): (.*)$`)

// Writer returns an io.Writer for the standard log package. Each written line
// becomes one entry with the given severity. Use log.Lshortfile without a
// date prefix to keep the source location.
func (b *Buffer) Writer(sev Severity) *LineWriter {
	return &LineWriter{buf: b, sev: sev}
}

// LineWriter splits its input into lines and pushes each one.
type LineWriter struct {
	mu      sync.Mutex
	buf     *Buffer
	sev     Severity
	pending []byte
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		w.push(string(w.pending[:idx]))
		w.pending = w.pending[idx+1:]
	}
	return len(p), nil
}

func (w *LineWriter) push(line string) {
	if line == "" {
		return
	}
	if m := sourcePrefix.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[2])
		w.buf.Push(w.sev, m[3], m[1], n)
		return
	}
	w.buf.Push(w.sev, line, "", 0)
}
