// Package decision decides whether a test's context should be dumped.
//
// Evaluation order:
//  1. DEBUG set to a falsy value: never dump, even on failure.
//  2. The test failed: dump.
//  3. DEBUG set to a truthy value: dump every test.
//  4. The test carries the dump marker: dump.
//  5. Otherwise: no dump.
package decision

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DebugKey is the control key, looked up case-insensitively.
const DebugKey = "DEBUG"

var (
	truthy = map[string]bool{"1": true, "true": true, "yes": true, "on": true}
	falsy  = map[string]bool{"0": true, "false": true, "no": true, "off": true, "": true}
)

// Env is the configuration the decision reads. Values are usually strings
// but may come from a config file as bools or numbers.
type Env map[string]any

// Decide reports whether a dump should be produced. It is total over its
// inputs and has no side effects.
func Decide(env Env, marked, failed bool) bool {
	value, ok := normalizedDebug(env)
	if ok && falsy[value] {
		return false
	}
	if failed {
		return true
	}
	if ok && truthy[value] {
		return true
	}
	return marked
}

// Maker binds Decide to one environment.
type Maker struct {
	env Env
}

// NewMaker creates a Maker over env.
func NewMaker(env Env) *Maker {
	return &Maker{env: env}
}

// Decide applies the decision to this Maker's environment.
func (m *Maker) Decide(marked, failed bool) bool {
	return Decide(m.env, marked, failed)
}

// Disabled reports whether DEBUG explicitly turns dumping off.
func (m *Maker) Disabled() bool {
	v, ok := normalizedDebug(m.env)
	return ok && falsy[v]
}

// normalizedDebug returns the lower-cased control value. ok is false when the
// key is absent or the value is not a scalar.
func normalizedDebug(env Env) (string, bool) {
	raw, ok := Lookup(env, DebugKey)
	if !ok {
		return "", false
	}
	s, ok := scalarString(raw)
	if !ok {
		return "", false
	}
	return strings.ToLower(s), true
}

// Lookup finds key case-insensitively. An exact match wins; otherwise the
// first match in sorted key order is used so the result never depends on map
// iteration order. Nil values count as absent.
func Lookup(env Env, key string) (any, bool) {
	if v, ok := env[key]; ok {
		return v, v != nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.EqualFold(k, key) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	v := env[keys[0]]
	return v, v != nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case fmt.Stringer:
		return x.String(), true
	}
	return "", false
}
