package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResolvesRelativeReferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/c.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f, err := NewFetcher(FetcherConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	resp, err := f.Get(context.Background(), "/data/c.json", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, srv.URL+"/data/c.json", resp.URL)
}

func TestGetReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, err := NewFetcher(FetcherConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = f.Get(context.Background(), "/missing.json", RequestOptions{})
	var statusErr *assets.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "Not Found", statusErr.Status)
	assert.Contains(t, err.Error(), "404")
}

func TestGetSendsOriginForCrossOriginRequests(t *testing.T) {
	var origin string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin = r.Header.Get("Origin")
	}))
	defer srv.Close()

	f, err := NewFetcher(FetcherConfig{AppOrigin: "http://localhost:5173"})
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL+"/a.png", RequestOptions{CrossOrigin: "anonymous"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", origin)

	_, err = f.Get(context.Background(), srv.URL+"/a.png", RequestOptions{})
	require.NoError(t, err)
	assert.Empty(t, origin)
}

func TestGetEnforcesBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 32)))
	}))
	defer srv.Close()

	f, err := NewFetcher(FetcherConfig{MaxBodyBytes: 16})
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL, RequestOptions{})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestResolveWithoutBase(t *testing.T) {
	f, err := NewFetcher(FetcherConfig{})
	require.NoError(t, err)

	_, err = f.Resolve("/img/x.png")
	assert.Error(t, err)

	abs, err := f.Resolve("https://example.com/x.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x.png", abs)
}

func TestGetHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	f, err := NewFetcher(FetcherConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Get(ctx, srv.URL, RequestOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
