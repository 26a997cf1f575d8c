// Package collector defines the contract for pluggable providers of report
// sections and ships the collectors used by default.
package collector

import (
	"net/http"
	"reflect"
	"strings"

	"ctxdump/internal/fields"
)

// Input is the bundle handed to every collector for one capture.
type Input struct {
	FullDump    bool // final snapshot rather than a mid-test step
	Request     *http.Request
	Response    *http.Response
	Client      Client
	Logs        []string
	CaptureTime string
	Values      map[string]any // host-provided extras
}

// Collector provides one named section of a snapshot. An empty or nil Map
// means there is nothing to report. A soft failure is reported by setting an
// "error" key; a returned error is turned into one by the snapshotter.
type Collector interface {
	Collect(in Input) (*fields.Map, error)
}

// Named lets a collector choose its section name.
type Named interface {
	Name() string
}

// Name returns the section name for c: Named.Name when implemented,
// otherwise the concrete type name without its "Collector" suffix.
func Name(c Collector) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	t := reflect.TypeOf(c)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.TrimSuffix(t.Name(), "Collector")
	if name == "" {
		return t.String()
	}
	return name
}

// Func adapts a function to a named Collector.
type Func struct {
	Label string
	Fn    func(in Input) (*fields.Map, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Collect(in Input) (*fields.Map, error) { return f.Fn(in) }

// Client is the capability a tracking HTTP client exposes to collectors.
type Client interface {
	LastRequest() *http.Request
	LastResponse() *http.Response
}

// CookieSource is implemented by clients that keep a cookie jar.
type CookieSource interface {
	Cookies() []*http.Cookie
}

// requestOf returns the bundle's request, falling back to the client's.
func requestOf(in Input) *http.Request {
	if in.Request != nil {
		return in.Request
	}
	if in.Client != nil {
		return in.Client.LastRequest()
	}
	return nil
}

// responseOf returns the bundle's response, falling back to the client's.
func responseOf(in Input) *http.Response {
	if in.Response != nil {
		return in.Response
	}
	if in.Client != nil {
		return in.Client.LastResponse()
	}
	return nil
}
