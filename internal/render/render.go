// Package render turns nested report data into the indented text format of
// the report file and appends it to disk.
package render

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"ctxdump/internal/fields"
)

const (
	indentWidth = 2

	// MaxValueLength is the number of characters kept from a single line.
	MaxValueLength = 2000

	truncatedSuffix = "... (truncated)"

	// MaxDepth is the deepest nesting level rendered. Anything below it,
	// including self-referencing values, is replaced by maxDepthMarker.
	MaxDepth = 32

	maxDepthMarker = "... (max depth)"

	// DateLayout formats time.Time leaves and the report date.
	DateLayout = "2006-01-02 15:04:05.000000"
)

// Render formats m, one "key: value" line per scalar, nested blocks indented
// by two spaces per level. Output is deterministic for identical input.
func Render(m *fields.Map) string {
	return strings.Join(block(m, 0), "\n")
}

func block(m *fields.Map, level int) []string {
	pad := strings.Repeat(" ", level*indentWidth)
	var lines []string
	m.Each(func(key string, value any) {
		lines = append(lines, entry(pad, key, value, level)...)
	})
	return lines
}

func entry(pad, key string, value any, level int) []string {
	switch v := normalize(value).(type) {
	case nil:
		return []string{pad + key + ":"}
	case string:
		if !strings.Contains(v, "\n") {
			return []string{pad + key + ": " + Sanitize(v)}
		}
		lines := []string{pad + key + ":"}
		sub := pad + strings.Repeat(" ", indentWidth)
		for _, line := range strings.Split(v, "\n") {
			lines = append(lines, sub+Sanitize(line))
		}
		return lines
	case *fields.Map:
		if level >= MaxDepth {
			return []string{pad + key + ": " + maxDepthMarker}
		}
		return append([]string{pad + key + ":"}, block(v, level+1)...)
	case []any:
		if level >= MaxDepth {
			return []string{pad + key + ": " + maxDepthMarker}
		}
		return append([]string{pad + key + ":"}, list(v, level+1)...)
	}
	return nil
}

func list(items []any, level int) []string {
	pad := strings.Repeat(" ", level*indentWidth)
	var lines []string
	for _, item := range items {
		switch v := normalize(item).(type) {
		case nil:
			lines = append(lines, pad+"-")
		case string:
			parts := strings.Split(v, "\n")
			lines = append(lines, pad+"- "+Sanitize(parts[0]))
			sub := pad + strings.Repeat(" ", indentWidth)
			for _, p := range parts[1:] {
				lines = append(lines, sub+Sanitize(p))
			}
		case *fields.Map:
			if level >= MaxDepth {
				lines = append(lines, pad+"- "+maxDepthMarker)
				continue
			}
			lines = append(lines, pad+"-")
			lines = append(lines, block(v, level+1)...)
		case []any:
			if level >= MaxDepth {
				lines = append(lines, pad+"- "+maxDepthMarker)
				continue
			}
			lines = append(lines, pad+"-")
			lines = append(lines, list(v, level+1)...)
		}
	}
	return lines
}

// Sanitize collapses line breaks into spaces and truncates the result to
// MaxValueLength characters.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= MaxValueLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxValueLength {
		return s
	}
	return string(runes[:MaxValueLength]) + truncatedSuffix
}

// normalize reduces a value to nil, string, *fields.Map or []any.
func normalize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case *fields.Map:
		if v == nil {
			return nil
		}
		return v
	case fields.Map:
		return &v
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format(DateLayout)
	case time.Duration:
		return v.String()
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
	}
	switch v := value.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return sortedMap(rv)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.String:
		return rv.String()
	case reflect.Struct:
		return fmt.Sprintf("%+v", value)
	}
	return fmt.Sprint(value)
}

type mapEntry struct {
	key   reflect.Value
	name  string
	value any
}

// sortedMap converts a Go map to a Map with keys in sorted order. Integer
// keys sort numerically, and a map keyed exactly 0..n-1 becomes a list.
func sortedMap(rv reflect.Value) any {
	entries := make([]mapEntry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, mapEntry{
			key:   iter.Key(),
			name:  fmt.Sprint(iter.Key().Interface()),
			value: iter.Value().Interface(),
		})
	}

	switch rv.Type().Key().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(entries, func(i, j int) bool { return entries[i].key.Int() < entries[j].key.Int() })
		if items, ok := sequence(entries); ok {
			return items
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sort.Slice(entries, func(i, j int) bool { return entries[i].key.Uint() < entries[j].key.Uint() })
		if items, ok := sequence(entries); ok {
			return items
		}
	default:
		sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	}

	m := &fields.Map{}
	for _, e := range entries {
		m.Set(e.name, e.value)
	}
	return m
}

// sequence returns the values of numerically sorted entries when their keys
// are 0, 1, ... n-1.
func sequence(entries []mapEntry) ([]any, bool) {
	items := make([]any, len(entries))
	for i, e := range entries {
		if e.name != strconv.Itoa(i) {
			return nil, false
		}
		items[i] = e.value
	}
	return items, true
}
