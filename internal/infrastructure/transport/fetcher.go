// Package transport fetches manifest and asset bytes over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
)

// ErrBodyTooLarge is returned when a response exceeds the configured limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Fetcher issues GET requests relative to a base URL.
type Fetcher struct {
	client       *http.Client
	base         *url.URL
	appOrigin    string
	maxBodyBytes int64
}

// FetcherConfig configures a Fetcher. Zero values fall back to sane defaults.
type FetcherConfig struct {
	Client       *http.Client
	BaseURL      string
	AppOrigin    string // sent as Origin on CORS-mode requests
	MaxBodyBytes int64
}

// Response is a fully read response body.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// RequestOptions tweak a single request.
type RequestOptions struct {
	CrossOrigin string // "", "anonymous" or "use-credentials"
	Accept      string
}

// NewFetcher creates a fetcher. BaseURL may be empty, in which case only
// absolute references can be fetched.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
		}
		base = parsed
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 20
	}

	return &Fetcher{
		client:       client,
		base:         base,
		appOrigin:    cfg.AppOrigin,
		maxBodyBytes: maxBody,
	}, nil
}

// Resolve turns a manifest reference into an absolute URL.
func (f *Fetcher) Resolve(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	if f.base == nil {
		return "", fmt.Errorf("relative URL %q with no base URL configured", ref)
	}
	return f.base.ResolveReference(parsed).String(), nil
}

// Get fetches ref and returns its body. Non-2xx statuses return *assets.StatusError.
func (f *Fetcher) Get(ctx context.Context, ref string, opts RequestOptions) (*Response, error) {
	target, err := f.Resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	if opts.CrossOrigin != "" && f.appOrigin != "" {
		req.Header.Set("Origin", f.appOrigin)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &assets.StatusError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("fetch %s: %w (%d bytes)", target, ErrBodyTooLarge, f.maxBodyBytes)
	}

	return &Response{
		URL:         target,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
