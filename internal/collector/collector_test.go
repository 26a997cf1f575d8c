package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxdump/internal/errbuf"
	"ctxdump/internal/fields"
	"ctxdump/internal/mailbox"
	"ctxdump/internal/querylog"
)

type fakeClient struct {
	req     *http.Request
	resp    *http.Response
	cookies []*http.Cookie
	session Session
	sessErr error
}

func (c *fakeClient) LastRequest() *http.Request { return c.req }
func (c *fakeClient) LastResponse() *http.Response { return c.resp }
func (c *fakeClient) Cookies() []*http.Cookie { return c.cookies }
func (c *fakeClient) Session() (Session, error) { return c.session, c.sessErr }

func get(t *testing.T, m *fields.Map, key string) any {
	t.Helper()
	v, ok := m.Get(key)
	require.True(t, ok, "missing key %q in %v", key, m.Keys())
	return v
}

func TestName(t *testing.T) {
	assert.Equal(t, "Browser", Name(BrowserCollector{}))
	assert.Equal(t, "ErrorBuffer", Name(&ErrorBufferCollector{}))
	assert.Equal(t, "custom", Name(Func{Label: "custom"}))
}

func TestBrowser_ExplicitRequestWins(t *testing.T) {
	client := &fakeClient{
		req:  &http.Request{Method: http.MethodGet, URL: &url.URL{Scheme: "http", Host: "x", Path: "/client"}},
		resp: &http.Response{StatusCode: 500},
	}
	in := Input{
		Client:  client,
		Request: &http.Request{Method: http.MethodPost, URL: &url.URL{Scheme: "http", Host: "x", Path: "/login"}},
	}

	data, err := BrowserCollector{}.Collect(in)
	require.NoError(t, err)
	assert.Equal(t, "POST http://x/login", get(t, data, "url"))
	assert.Equal(t, 500, get(t, data, "status"))
}

func TestBrowser_NothingInPlay(t *testing.T) {
	data, err := BrowserCollector{}.Collect(Input{})
	require.NoError(t, err)
	assert.Equal(t, 0, data.Len())
}

func TestLog_JoinsLines(t *testing.T) {
	data, err := LogCollector{}.Collect(Input{Logs: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", get(t, data, "content"))

	data, err = LogCollector{}.Collect(Input{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestErrorBuffer_DrainsIntoContent(t *testing.T) {
	buf := errbuf.New()
	buf.Push(errbuf.SeverityWarning, "Undefined variable $x", "/app/a.go", 10)
	entry := buf.Entries()[0]
	at := entry.Time.Format("15:04:05.000000")

	data, err := NewErrorBufferCollector(buf).Collect(Input{CaptureTime: "12:00:00.000000"})
	require.NoError(t, err)

	want := "[12:00:00.000000] [ctxdump] runtime errors (in memory)\n" +
		"[" + at + "] [Warning] Undefined variable $x\n" +
		"  " + at + "\n" +
		"  Undefined variable $x (/app/a.go:10)"
	assert.Equal(t, want, get(t, data, "content"))
	assert.Equal(t, 0, buf.Len())

	data, err = NewErrorBufferCollector(buf).Collect(Input{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRunStrategies_Single(t *testing.T) {
	res, err := RunStrategies([]Strategy{{Name: "only", Run: func() (*fields.Map, error) { return nil, nil }}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	want := fields.New(fields.Pair{Key: "a", Value: 1})
	res, err = RunStrategies([]Strategy{{Name: "only", Run: func() (*fields.Map, error) { return want, nil }}})
	require.NoError(t, err)
	assert.Same(t, want, res)

	_, err = RunStrategies([]Strategy{{Name: "only", Run: func() (*fields.Map, error) { return nil, errors.New("boom") }}})
	assert.EqualError(t, err, "boom")
}

func TestRunStrategies_MultipleStatuses(t *testing.T) {
	res, err := RunStrategies([]Strategy{
		{Name: "skip", Run: func() (*fields.Map, error) { return nil, nil }},
		{Name: "empty", Run: func() (*fields.Map, error) { return &fields.Map{}, nil }},
		{Name: "ok", Run: func() (*fields.Map, error) { return fields.New(fields.Pair{Key: "x", Value: 1}), nil }},
		{Name: "soft", Run: func() (*fields.Map, error) { return fields.New(fields.Pair{Key: "error", Value: "no"}), nil }},
		{Name: "failed", Run: func() (*fields.Map, error) { return nil, errors.New("boom") }},
		{Name: "panicked", Run: func() (*fields.Map, error) { panic("kaboom") }},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"skip", "empty", "ok", "soft", "failed", "panicked"}, res.Keys())

	statuses := map[string]string{
		"skip": StatusSkipped, "empty": StatusEmpty, "ok": StatusSuccess,
		"soft": StatusError, "failed": StatusError, "panicked": StatusError,
	}
	for name, want := range statuses {
		entry := get(t, res, name).(*fields.Map)
		assert.Equal(t, []string{"status", "time_ms", "memory_kb", "data"}, entry.Keys(), name)
		assert.Equal(t, want, get(t, entry, "status"), name)
	}

	failed := get(t, get(t, res, "failed").(*fields.Map), "data").(*fields.Map)
	assert.Equal(t, "boom", get(t, failed, "exception"))
	panicked := get(t, get(t, res, "panicked").(*fields.Map), "data").(*fields.Map)
	assert.Equal(t, "kaboom", get(t, panicked, "exception"))
}

func TestSession_FromClient(t *testing.T) {
	client := &fakeClient{
		req: &http.Request{Method: http.MethodGet, URL: &url.URL{Path: "/"}},
		session: Session{
			ID:         "abc",
			Attributes: map[string]any{"user": "ada", "roles": []string{"admin"}},
		},
	}

	data, err := SessionCollector{}.Collect(Input{Client: client})
	require.NoError(t, err)
	assert.Equal(t, "abc", get(t, data, "id"))

	attrs := get(t, data, "attributes").(*fields.Map)
	assert.Equal(t, []string{"roles", "user"}, attrs.Keys())
	assert.Equal(t, "ada", get(t, attrs, "user"))
	assert.Equal(t, "[\n    \"admin\"\n]", get(t, attrs, "roles"))
}

func TestSession_SoftErrors(t *testing.T) {
	data, err := SessionCollector{}.Collect(Input{Client: &fakeClient{}})
	require.NoError(t, err)
	assert.Equal(t, "No request object in client", get(t, data, "error"))

	client := &fakeClient{req: &http.Request{URL: &url.URL{}}, sessErr: ErrNoSession}
	data, err = SessionCollector{}.Collect(Input{Client: client})
	require.NoError(t, err)
	assert.Equal(t, "Request has no session attached", get(t, data, "error"))

	client.sessErr = errors.New("store down")
	data, err = SessionCollector{}.Collect(Input{Client: client})
	require.NoError(t, err)
	assert.Equal(t, "session lookup failed: store down", get(t, data, "error"))
}

func TestSession_FallsBackToValues(t *testing.T) {
	in := Input{Values: map[string]any{SessionValuesKey: map[string]any{"cart": 3}}}

	data, err := SessionCollector{}.Collect(in)
	require.NoError(t, err)
	attrs := get(t, data, "attributes").(*fields.Map)
	assert.Equal(t, 3, get(t, attrs, "cart"))
}

func TestSession_NothingToReport(t *testing.T) {
	data, err := SessionCollector{}.Collect(Input{})
	require.NoError(t, err)
	assert.Equal(t, 0, data.Len())
}

func TestSession_Cookies(t *testing.T) {
	client := &fakeClient{cookies: []*http.Cookie{
		{Name: "sid", Value: strings.Repeat("v", 250), SameSite: http.SameSiteLaxMode},
		{Name: "pref", Value: "dark", Path: "/app", Domain: "example.test", Expires: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
	}}

	data, err := SessionCollector{}.Collect(Input{Client: client})
	require.NoError(t, err)

	cookies := get(t, data, "cookies").(*fields.Map)
	assert.Equal(t, []string{"sid", "pref"}, cookies.Keys())

	sid := get(t, cookies, "sid").(*fields.Map)
	assert.Equal(t, "/", get(t, sid, "path"))
	assert.Equal(t, "(current)", get(t, sid, "domain"))
	assert.Equal(t, strings.Repeat("v", 200)+"… (truncated)", get(t, sid, "value"))
	assert.Equal(t, "lax", get(t, sid, "same_site"))
	assert.False(t, sid.Has("expires"))

	pref := get(t, cookies, "pref").(*fields.Map)
	assert.Equal(t, "example.test", get(t, pref, "domain"))
	assert.Equal(t, "Wed, 02 Jan 2030 03:04:05 GMT", get(t, pref, "expires"))
}

func TestEncodeValue_Caps(t *testing.T) {
	items := make([]int, 60)
	encoded := encodeValue(items)
	assert.Contains(t, encoded, "... (Truncated: >50 items)")

	long := encodeValue(map[string]string{"k": strings.Repeat("x", 6000)})
	assert.True(t, strings.HasSuffix(long, "\n... (truncated)"))
	assert.Equal(t, 5000+len("\n... (truncated)"), len(long))
}

type staticQueries []querylog.Query

func (s staticQueries) Queries() []querylog.Query { return s }

func TestQuery_ReportsLog(t *testing.T) {
	log := staticQueries{
		{SQL: "SELECT 1", Duration: 1500 * time.Microsecond},
		{SQL: "INSERT INTO t VALUES (?)", Args: []any{7}, Err: errors.New("locked")},
	}

	data, err := QueryCollector{Log: log}.Collect(Input{})
	require.NoError(t, err)
	assert.Equal(t, 2, get(t, data, "count"))

	entries := get(t, data, "log").([]any)
	first := entries[0].(*fields.Map)
	assert.Equal(t, "SELECT 1", get(t, first, "sql"))
	assert.Equal(t, []any{}, get(t, first, "params"))
	assert.Equal(t, 1.5, get(t, first, "time_ms"))

	second := entries[1].(*fields.Map)
	assert.Equal(t, []any{7}, get(t, second, "params"))
	assert.Equal(t, "locked", get(t, second, "error"))
}

func TestQuery_FromValuesOrNothing(t *testing.T) {
	data, err := QueryCollector{}.Collect(Input{})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = QueryCollector{}.Collect(Input{Values: map[string]any{QueryLogKey: staticQueries{}}})
	require.NoError(t, err)
	assert.Equal(t, 0, get(t, data, "count"))
}

func TestMailer_Deduplicates(t *testing.T) {
	box := mailbox.New()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, box.SendTo(ctx, "ada@example.test", "Welcome", "hi", ""))
	}
	require.NoError(t, box.SendTo(ctx, "Bob <bob@example.test>", "Reset", "text", "<p>html</p>"))

	data, err := MailerCollector{Outbox: box}.Collect(Input{})
	require.NoError(t, err)

	msgs := get(t, data, "messages").([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(*fields.Map)
	assert.Equal(t, "Welcome", get(t, first, "subject"))
	assert.Equal(t, "<ada@example.test>", get(t, first, "to"))
	second := msgs[1].(*fields.Map)
	assert.Equal(t, "\"Bob\" <bob@example.test>", get(t, second, "to"))
	assert.Equal(t, "<p>html</p>", get(t, second, "body"))
}

func TestMailer_EmptyOutbox(t *testing.T) {
	data, err := MailerCollector{Outbox: mailbox.New()}.Collect(Input{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func ExampleFunc() {
	c := Func{Label: "Feature", Fn: func(in Input) (*fields.Map, error) {
		return fields.New(fields.Pair{Key: "full", Value: in.FullDump}), nil
	}}
	data, _ := c.Collect(Input{FullDump: true})
	v, _ := data.Get("full")
	fmt.Println(Name(c), v)
	// Output: Feature true
}
