package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxdump/internal/collector"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: r.PostForm.Get("user"), Path: "/"})
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_TracksLastExchange(t *testing.T) {
	srv := newServer(t)

	var seen []string
	c, err := New(
		WithBaseURL(srv.URL),
		WithActionHook(func(req *http.Request, resp *http.Response) {
			seen = append(seen, req.Method+" "+req.URL.RequestURI())
		}),
	)
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/missing?x=1")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, c.LastResponse().StatusCode)
	assert.Equal(t, "/missing?x=1", c.LastRequest().URL.RequestURI())
	assert.Equal(t, []string{"GET /missing?x=1"}, seen)
}

func TestClient_KeepsCookies(t *testing.T) {
	srv := newServer(t)
	c, err := New(WithBaseURL(srv.URL), WithHTTPClient(&http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}))
	require.NoError(t, err)

	resp, err := c.PostForm(context.Background(), "/login", url.Values{"user": {"ada"}})
	require.NoError(t, err)
	resp.Body.Close()

	cookies := c.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, "ada", cookies[0].Value)
}

func TestClient_TransportErrorStillRecorded(t *testing.T) {
	var calls int
	c, err := New(WithActionHook(func(req *http.Request, resp *http.Response) {
		calls++
		assert.Nil(t, resp)
	}))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotNil(t, c.LastRequest())
	assert.Nil(t, c.LastResponse())
}

func TestClient_NilSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.LastRequest())
	assert.Nil(t, c.LastResponse())
	assert.Nil(t, c.Cookies())
	_, err := c.Session()
	assert.ErrorIs(t, err, collector.ErrNoSession)
}

func TestClient_Session(t *testing.T) {
	srv := newServer(t)
	c, err := New(WithBaseURL(srv.URL), WithSessionReader(func(req *http.Request) (collector.Session, error) {
		if req.URL.Path != "/missing" {
			return collector.Session{}, errors.New("unexpected path")
		}
		return collector.Session{ID: "s1"}, nil
	}))
	require.NoError(t, err)

	_, err = c.Session()
	assert.ErrorIs(t, err, collector.ErrNoSession)

	resp, err := c.Get(context.Background(), "/missing")
	require.NoError(t, err)
	resp.Body.Close()

	sess, err := c.Session()
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(WithBaseURL("://bad"))
	assert.Error(t, err)
}
