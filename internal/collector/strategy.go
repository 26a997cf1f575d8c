package collector

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"ctxdump/internal/fields"
)

// Strategy outcomes recorded when more than one strategy runs.
const (
	StatusSkipped = "skipped"
	StatusEmpty   = "empty"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Strategy is one named way of gathering a collector's data. Run returns nil
// when the strategy does not apply.
type Strategy struct {
	Name string
	Run  func() (*fields.Map, error)
}

// RunStrategies executes strategies in order.
//
// With a single strategy its raw result is returned (an empty Map when it
// returned nil). With several, each result is wrapped as
// {status, time_ms, memory_kb, data} under the strategy's name. A failing
// single strategy returns its error for the caller to report.
func RunStrategies(strategies []Strategy) (*fields.Map, error) {
	switch len(strategies) {
	case 0:
		return &fields.Map{}, nil
	case 1:
		res, err := strategies[0].Run()
		if err != nil {
			return nil, err
		}
		if res == nil {
			return &fields.Map{}, nil
		}
		return res, nil
	}

	report := &fields.Map{}
	for _, s := range strategies {
		startMem := heapAlloc()
		start := time.Now()

		status, data := runOne(s)

		elapsed := time.Since(start)
		delta := int64(heapAlloc()) - int64(startMem)

		report.Set(s.Name, fields.New(
			fields.Pair{Key: "status", Value: status},
			fields.Pair{Key: "time_ms", Value: round3(float64(elapsed) / float64(time.Millisecond))},
			fields.Pair{Key: "memory_kb", Value: round3(float64(delta) / 1024)},
			fields.Pair{Key: "data", Value: data},
		))
	}
	return report, nil
}

func runOne(s Strategy) (status string, data *fields.Map) {
	defer func() {
		if r := recover(); r != nil {
			status = StatusError
			data = fields.New(fields.Pair{Key: "exception", Value: fmt.Sprint(r)})
		}
	}()

	res, err := s.Run()
	switch {
	case err != nil:
		return StatusError, fields.New(fields.Pair{Key: "exception", Value: err.Error()})
	case res == nil:
		return StatusSkipped, nil
	case res.Has("error"):
		return StatusError, res
	case res.Len() == 0:
		return StatusEmpty, nil
	default:
		return StatusSuccess, res
	}
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
