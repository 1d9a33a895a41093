package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>info@example.com <span>` + r.UserAgent() + `</span></body></html>`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	f := New(Config{Timeout: time.Second})

	page, err := f.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "info@example.com")
	assert.Contains(t, string(page.Body), DefaultUserAgent)
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	f := New(Config{Timeout: time.Second})

	for i := 0; i < 2; i++ {
		page, err := f.Fetch(context.Background(), srv.URL+"/")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, page.StatusCode)
	}
}

func TestFetchReportsNotFoundAsPage(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	f := New(Config{Timeout: time.Second})

	page, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), addr)
	assert.Error(t, err)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	_, err := New(Config{Timeout: 100 * time.Millisecond}).Fetch(context.Background(), srv.URL+"/slow")
	assert.Error(t, err)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "hook-agent"})
	var result harvest.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "hook-agent", collyReq.Headers.Get("User-Agent"))

	reqURL := mustParseURL(t, "https://example.com/about")
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: reqURL},
	})
	assert.Equal(t, harvest.Page{URL: "https://example.com/about", StatusCode: 200, Body: []byte("body")}, result)

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden, Request: &colly.Request{URL: reqURL}}, errors.New("Forbidden"))
	assert.Equal(t, http.StatusForbidden, result.StatusCode)
	assert.NoError(t, fetchErr)

	hooks.onError(&colly.Response{Request: &colly.Request{URL: reqURL}}, errors.New("boom"))
	require.Error(t, fetchErr)
	assert.Equal(t, "boom", fetchErr.Error())
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	assert.Equal(t, DefaultUserAgent, f.cfg.UserAgent)
	assert.Equal(t, 10*time.Second, f.cfg.Timeout)
	assert.True(t, f.baseCollector.AllowURLRevisit)
	assert.True(t, f.baseCollector.ParseHTTPErrorResponse)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
