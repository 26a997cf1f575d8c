package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"

	"ctxdump/internal/fields"
)

// Session is the server-side session state readable through a client.
type Session struct {
	ID         string
	Attributes map[string]any
	Flash      map[string][]string
}

// SessionSource is implemented by clients that can read the server-side
// session of the last request.
type SessionSource interface {
	Session() (Session, error)
}

// ErrNoSession is returned by a SessionSource when the last request carried
// no session.
var ErrNoSession = errors.New("no session")

// SessionValuesKey is the Input.Values key under which a host may pass
// session attributes directly.
const SessionValuesKey = "session"

const (
	maxCookieValue    = 200
	maxAttributeItems = 50
	maxEncodedValue   = 5000
)

// SessionCollector reports session attributes and the client's cookies.
type SessionCollector struct{}

func (SessionCollector) Collect(in Input) (*fields.Map, error) {
	data, err := RunStrategies([]Strategy{
		{Name: "Client", Run: func() (*fields.Map, error) {
			if res, err := sessionFromClient(in); res != nil || err != nil {
				return res, err
			}
			return sessionFromValues(in), nil
		}},
	})
	if err != nil {
		return nil, err
	}
	if cookies := prettyCookies(in); cookies != nil {
		data.Set("cookies", cookies)
	}
	return data, nil
}

func sessionFromClient(in Input) (*fields.Map, error) {
	src, ok := in.Client.(SessionSource)
	if !ok || in.Client == nil {
		return nil, nil
	}
	if in.Client.LastRequest() == nil {
		return fields.New(fields.Pair{Key: "error", Value: "No request object in client"}), nil
	}
	sess, err := src.Session()
	if errors.Is(err, ErrNoSession) {
		return fields.New(fields.Pair{Key: "error", Value: "Request has no session attached"}), nil
	}
	if err != nil {
		return fields.New(fields.Pair{Key: "error", Value: "session lookup failed: " + err.Error()}), nil
	}
	return fields.New(
		fields.Pair{Key: "id", Value: sess.ID},
		fields.Pair{Key: "attributes", Value: formatAttributes(sess.Attributes)},
		fields.Pair{Key: "flash", Value: sess.Flash},
	), nil
}

func sessionFromValues(in Input) *fields.Map {
	raw, ok := in.Values[SessionValuesKey]
	if !ok {
		return nil
	}
	attrs, ok := raw.(map[string]any)
	if !ok {
		return fields.New(fields.Pair{Key: "error", Value: fmt.Sprintf("unsupported session value %T", raw)})
	}
	return fields.New(fields.Pair{Key: "attributes", Value: formatAttributes(attrs)})
}

func formatAttributes(attrs map[string]any) *fields.Map {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &fields.Map{}
	for _, k := range keys {
		v := attrs[k]
		if isScalar(v) {
			out.Set(k, v)
		} else {
			out.Set(k, encodeValue(v))
		}
	}
	return out
}

func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// encodeValue pretty-prints a non-scalar as JSON, keeping at most
// maxAttributeItems elements of a slice.
func encodeValue(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() > maxAttributeItems {
		items := make([]any, 0, maxAttributeItems+1)
		for i := 0; i < maxAttributeItems; i++ {
			items = append(items, rv.Index(i).Interface())
		}
		items = append(items, fmt.Sprintf("... (Truncated: >%d items)", maxAttributeItems))
		v = items
	}

	encoded, err := json.MarshalIndent(v, "", "    ")
	content := string(encoded)
	if err != nil {
		content = fmt.Sprintf("%+v", v)
	}
	if len(content) > maxEncodedValue {
		content = content[:maxEncodedValue] + "\n... (truncated)"
	}
	return content
}

func prettyCookies(in Input) *fields.Map {
	src, ok := in.Client.(CookieSource)
	if !ok || in.Client == nil {
		return nil
	}
	cookies := src.Cookies()
	if len(cookies) == 0 {
		return nil
	}

	out := &fields.Map{}
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out.Set(c.Name, prettyCookie(c))
	}
	if out.Len() == 0 {
		return nil
	}
	return out
}

func prettyCookie(c *http.Cookie) *fields.Map {
	path := c.Path
	if path == "" {
		path = "/"
	}
	domain := c.Domain
	if domain == "" {
		domain = "(current)"
	}
	value := c.Value
	if len(value) > maxCookieValue {
		value = value[:maxCookieValue] + "… (truncated)"
	}

	entry := fields.New(
		fields.Pair{Key: "path", Value: path},
		fields.Pair{Key: "domain", Value: domain},
		fields.Pair{Key: "value", Value: value},
	)
	if !c.Expires.IsZero() {
		entry.Set("expires", c.Expires.UTC().Format(http.TimeFormat))
	}
	if c.SameSite != 0 {
		entry.Set("same_site", sameSiteLabel(c.SameSite))
	}
	return entry
}

func sameSiteLabel(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteNoneMode:
		return "none"
	default:
		return "default"
	}
}
