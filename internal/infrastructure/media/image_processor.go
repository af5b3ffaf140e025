// Package media decodes fetched images into texture-ready handles and renders
// WebP previews of them.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/transport"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
)

// PreviewQuality is the WebP quality used for previews.
const PreviewQuality = 85

// ImageAccept lists only the formats Decode can read.
const ImageAccept = "image/webp,image/png,image/jpeg,image/gif,image/bmp,image/tiff"

// ImageProcessor decodes image bytes and optionally fits them into a maximum
// texture size.
type ImageProcessor struct {
	maxTextureSize int // 0 keeps the original size
}

// NewImageProcessor creates a new ImageProcessor instance
func NewImageProcessor(maxTextureSize int) *ImageProcessor {
	return &ImageProcessor{maxTextureSize: maxTextureSize}
}

// Decode sniffs data, decodes it and returns an image handle. Bodies that are
// not images (an HTML error page served with 200, say) fail with
// assets.ErrNotAnImage.
func (p *ImageProcessor) Decode(url, crossOrigin string, data []byte) (*assets.ImageAsset, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w: empty body", url, assets.ErrNotAnImage)
	}

	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		detected := "unknown"
		if err == nil && kind != filetype.Unknown {
			detected = kind.MIME.Value
		}
		return nil, fmt.Errorf("%s: %w (detected %s)", url, assets.ErrNotAnImage, detected)
	}

	var img image.Image
	if kind.Extension == "webp" {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image %s: %w", kind.Extension, url, err)
	}

	img = p.fit(img)
	bounds := img.Bounds()

	return &assets.ImageAsset{
		URL:         url,
		CrossOrigin: crossOrigin,
		Format:      kind.Extension,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Bytes:       len(data),
		Image:       img,
	}, nil
}

func (p *ImageProcessor) fit(img image.Image) image.Image {
	if p.maxTextureSize <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= p.maxTextureSize && b.Dy() <= p.maxTextureSize {
		return img
	}
	return imaging.Fit(img, p.maxTextureSize, p.maxTextureSize, imaging.Lanczos)
}

// Preview renders img as a WebP of the given width, keeping the aspect ratio.
// Images narrower than width are encoded as-is.
func (p *ImageProcessor) Preview(img image.Image, width int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to preview")
	}
	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: PreviewQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode WebP preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Getter is the subset of transport.Fetcher the loader needs.
type Getter interface {
	Get(ctx context.Context, ref string, opts transport.RequestOptions) (*transport.Response, error)
}

// ImageLoader fetches and decodes one image URL.
type ImageLoader struct {
	getter    Getter
	processor *ImageProcessor
}

func NewImageLoader(getter Getter, processor *ImageProcessor) *ImageLoader {
	return &ImageLoader{getter: getter, processor: processor}
}

// Load fetches url and decodes the body.
func (l *ImageLoader) Load(ctx context.Context, url, crossOrigin string) (*assets.ImageAsset, error) {
	resp, err := l.getter.Get(ctx, url, transport.RequestOptions{
		CrossOrigin: crossOrigin,
		Accept:      ImageAccept,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", url, err)
	}
	return l.processor.Decode(url, crossOrigin, resp.Body)
}
