// Package caching provides the process-lifetime image dedup cache.
package caching

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
)

// ImageLoadFunc performs the one real load for a URL.
type ImageLoadFunc func(ctx context.Context, url, crossOrigin string) (*assets.ImageAsset, error)

// PendingImage is an in-flight or completed image load shared by every
// caller that asked for the same URL.
type PendingImage struct {
	URL  string
	done chan struct{}

	image *assets.ImageAsset
	err   error
}

// Done is closed once the load has settled.
func (p *PendingImage) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the load settles or ctx ends. A ctx timeout only ends
// this caller's wait; the load itself keeps running for other waiters.
func (p *PendingImage) Wait(ctx context.Context) (*assets.ImageAsset, error) {
	select {
	case <-p.done:
		return p.image, p.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for image %s: %w", p.URL, ctx.Err())
	}
}

// ImageCache maps exact URL strings to their shared load. Entries are never
// evicted.
type ImageCache struct {
	mu      sync.Mutex
	entries map[string]*PendingImage
	load    ImageLoadFunc
	ctx     context.Context

	hits   atomic.Int64
	misses atomic.Int64
}

// NewImageCache creates a cache whose loads run under ctx, which should live
// as long as the process.
func NewImageCache(ctx context.Context, load ImageLoadFunc) *ImageCache {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ImageCache{
		entries: make(map[string]*PendingImage),
		load:    load,
		ctx:     ctx,
	}
}

// GetOrCreate returns the pending load for url, starting it if this is the
// first request. hit reports whether an existing load was reused. The
// crossOrigin of the first request wins.
func (c *ImageCache) GetOrCreate(url, crossOrigin string) (pending *PendingImage, hit bool) {
	c.mu.Lock()
	if existing, ok := c.entries[url]; ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return existing, true
	}
	pending = &PendingImage{URL: url, done: make(chan struct{})}
	c.entries[url] = pending
	c.mu.Unlock()

	c.misses.Add(1)
	go c.run(pending, crossOrigin)
	return pending, false
}

func (c *ImageCache) run(p *PendingImage, crossOrigin string) {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.image, p.err = nil, fmt.Errorf("image load %s panicked: %v", p.URL, r)
		}
	}()

	img, err := c.load(c.ctx, p.URL, crossOrigin)
	if err == nil && img == nil {
		err = fmt.Errorf("image load %s returned no image", p.URL)
	}
	p.image, p.err = img, err
}

// Len returns the number of URLs ever requested.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Peek returns the pending load for url without starting one.
func (c *ImageCache) Peek(url string) (*PendingImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[url]
	return p, ok
}

// Stats reports lifetime hit and miss counts.
func (c *ImageCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
