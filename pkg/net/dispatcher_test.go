package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []int
}

func (o *recordingObserver) ObserveUpstream(method string, status int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, status)
}

func TestDispatcher_SendAndObserve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	d, err := NewDispatcher(Options{Timeout: 5 * time.Second, Observer: obs})
	require.NoError(t, err)

	req, err := BuildUpstreamRequest(context.Background(), http.MethodPost, srv.URL+"/api/articles", strings.NewReader(`{}`), "application/json", "admin-key")
	require.NoError(t, err)

	resp, err := d.Send(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []int{http.StatusCreated}, obs.calls)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	d, err := NewDispatcher(Options{Observer: obs})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := BuildUpstreamRequest(context.Background(), http.MethodGet, srv.URL, nil, "", "")
	_, err = d.Send(ctx, req)
	assert.Error(t, err)
	assert.Equal(t, []int{0}, obs.calls)
}

func TestNewDispatcher_InvalidProxy(t *testing.T) {
	_, err := NewDispatcher(Options{ProxyURL: "://bad"})
	assert.Error(t, err)
}

func TestBuildUpstreamRequest_Headers(t *testing.T) {
	req, err := BuildUpstreamRequest(context.Background(), http.MethodPost, "http://cms.local/api/upload", nil, "multipart/form-data; boundary=xyz", "k")
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data; boundary=xyz", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer k", req.Header.Get("Authorization"))

	req, _ = BuildUpstreamRequest(context.Background(), http.MethodGet, "http://cms.local/api/users/me", nil, "", "")
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Content-Type"))
}
