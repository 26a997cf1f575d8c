package collector

import (
	"time"

	"ctxdump/internal/fields"
	"ctxdump/internal/querylog"
)

// QueryLogKey is the Input.Values key a host may use to pass a QueryLog.
const QueryLogKey = "querylog"

// QueryLog is a source of executed SQL statements.
type QueryLog interface {
	Queries() []querylog.Query
}

// QueryCollector reports the statements recorded by a QueryLog.
type QueryCollector struct {
	Log QueryLog
}

func (c QueryCollector) Collect(in Input) (*fields.Map, error) {
	log := c.Log
	if log == nil {
		log, _ = in.Values[QueryLogKey].(QueryLog)
	}
	if log == nil {
		return nil, nil
	}

	queries := log.Queries()
	entries := make([]any, 0, len(queries))
	for _, q := range queries {
		params := q.Args
		if params == nil {
			params = []any{}
		}
		entry := fields.New(
			fields.Pair{Key: "sql", Value: q.SQL},
			fields.Pair{Key: "params", Value: params},
			fields.Pair{Key: "time_ms", Value: round3(float64(q.Duration) / float64(time.Millisecond))},
		)
		if q.Err != nil {
			entry.Set("error", q.Err.Error())
		}
		entries = append(entries, entry)
	}
	return fields.New(
		fields.Pair{Key: "count", Value: len(entries)},
		fields.Pair{Key: "log", Value: entries},
	), nil
}
