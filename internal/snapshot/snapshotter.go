// Package snapshot runs the registered collectors and assembles their
// sections into one snapshot.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"ctxdump/internal/collector"
	"ctxdump/internal/fields"
)

type registered struct {
	name string
	c    collector.Collector
}

// Snapshotter aggregates collectors in registration order.
type Snapshotter struct {
	logger     *zap.Logger
	collectors []registered
	used       map[string]int
}

// New creates a Snapshotter. A nil logger discards output.
func New(logger *zap.Logger, collectors ...collector.Collector) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Snapshotter{logger: logger, used: make(map[string]int)}
	for _, c := range collectors {
		s.Add(c)
	}
	return s
}

// Add registers c. A section name already taken gets a "#N" suffix.
func (s *Snapshotter) Add(c collector.Collector) {
	if c == nil {
		return
	}
	base := collector.Name(c)
	s.used[base]++
	name := base
	if n := s.used[base]; n > 1 {
		name = base + "#" + strconv.Itoa(n)
	}
	s.collectors = append(s.collectors, registered{name: name, c: c})
}

// Names returns the section names in registration order.
func (s *Snapshotter) Names() []string {
	names := make([]string, len(s.collectors))
	for i, r := range s.collectors {
		names[i] = r.name
	}
	return names
}

// Collect runs every collector against in. A collector that fails or panics
// contributes an inline "error" entry; one with nothing to say contributes
// no section.
func (s *Snapshotter) Collect(in collector.Input) *fields.Map {
	snap := &fields.Map{}
	for _, r := range s.collectors {
		data, err := run(r.c, in)
		if err != nil {
			s.logger.Warn("collector failed",
				zap.String("collector", r.name),
				zap.Error(err),
			)
			snap.Set(r.name, fields.New(fields.Pair{Key: "error", Value: err.Error()}))
			continue
		}
		if data.Len() == 0 {
			continue
		}
		snap.Set(r.name, data)
	}
	return snap
}

var errPanic = errors.New("collector panicked")

func run(c collector.Collector, in collector.Input) (data *fields.Map, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return c.Collect(in)
}
