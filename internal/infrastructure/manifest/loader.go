// Package manifest fetches and decodes the asset manifest document.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/media"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/transport"
)

// Loader fetches the manifest from a fixed URL.
type Loader struct {
	getter media.Getter
	url    string
}

func NewLoader(getter media.Getter, manifestURL string) *Loader {
	return &Loader{getter: getter, url: manifestURL}
}

// URL returns the manifest location.
func (l *Loader) URL() string {
	return l.url
}

// Load fetches and decodes the manifest. It never returns a nil manifest:
// on any failure the result is empty and the error wraps
// assets.ErrManifestUnavailable together with the cause.
func (l *Loader) Load(ctx context.Context) (*assets.Manifest, error) {
	resp, err := l.getter.Get(ctx, l.url, transport.RequestOptions{Accept: "application/json"})
	if err != nil {
		return assets.EmptyManifest(), fmt.Errorf("%w: %w", assets.ErrManifestUnavailable, err)
	}

	var m assets.Manifest
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		return assets.EmptyManifest(), fmt.Errorf("%w: failed to parse %s: %w", assets.ErrManifestUnavailable, l.url, err)
	}
	if m.Items == nil {
		m.Items = []assets.Item{}
	}
	return &m, nil
}
