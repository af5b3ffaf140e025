package assets

import (
	"image"
	"time"
)

// ImageAsset is a decoded image handle. Items sharing a URL share one
// *ImageAsset.
type ImageAsset struct {
	URL         string      `json:"url"`
	CrossOrigin string      `json:"crossOrigin"`
	Format      string      `json:"format"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Bytes       int         `json:"bytes"`
	Image       image.Image `json:"-"`
}

// LoadResult is the outcome of loading one manifest item.
type LoadResult struct {
	ID       string        `json:"id"`
	Type     ItemType      `json:"type"`
	URL      string        `json:"url"`
	Asset    any           `json:"-"`
	Failed   bool          `json:"failed"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Error is the failure message, or "" for a successful load.
func (r LoadResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Assets maps manifest ids to loaded values. A failed item's id maps to nil.
type Assets map[string]any

// Has reports whether id was declared in the manifest, loaded or not.
func (a Assets) Has(id string) bool {
	_, ok := a[id]
	return ok
}

// Loaded reports whether id holds a usable value.
func (a Assets) Loaded(id string) bool {
	v, ok := a[id]
	return ok && v != nil
}

func (a Assets) Image(id string) (*ImageAsset, bool) {
	img, ok := a[id].(*ImageAsset)
	return img, ok && img != nil
}

// JSON returns the parsed payload of a json item.
func (a Assets) JSON(id string) (any, bool) {
	v, ok := a[id]
	if !ok || v == nil {
		return nil, false
	}
	if _, isImage := v.(*ImageAsset); isImage {
		return nil, false
	}
	return v, true
}

// Batch is everything one preload run produced.
type Batch struct {
	ID           string        `json:"id"`
	Assets       Assets        `json:"-"`
	Results      []LoadResult  `json:"results"`
	FailedIDs    []string      `json:"failedIds"`
	DuplicateIDs []string      `json:"duplicateIds,omitempty"`
	ManifestErr  error         `json:"-"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

// NewBatch returns a batch with an empty, non-nil Assets map.
func NewBatch(id string) *Batch {
	return &Batch{
		ID:        id,
		Assets:    Assets{},
		Results:   []LoadResult{},
		FailedIDs: []string{},
		StartedAt: time.Now().UTC(),
	}
}

// Degraded reports whether the manifest itself could not be loaded.
func (b *Batch) Degraded() bool {
	return b != nil && b.ManifestErr != nil
}

// ProgressEventType distinguishes per-item events from the batch summary.
type ProgressEventType string

const (
	ProgressItemSettled ProgressEventType = "item"
	ProgressBatchDone   ProgressEventType = "batch"
)

// ProgressEvent is published as items settle, for loading screens.
type ProgressEvent struct {
	BatchID  string            `json:"batchId"`
	Type     ProgressEventType `json:"type"`
	ItemID   string            `json:"itemId,omitempty"`
	ItemType ItemType          `json:"itemType,omitempty"`
	Failed   bool              `json:"failed,omitempty"`
	Error    string            `json:"error,omitempty"`
	Settled  int               `json:"settled"`
	Total    int               `json:"total"`
	Duration time.Duration     `json:"duration"`
}

// Result returns the outcome that decided id's value, i.e. the last result
// recorded for it.
func (b *Batch) Result(id string) (LoadResult, bool) {
	if b == nil {
		return LoadResult{}, false
	}
	for i := len(b.Results) - 1; i >= 0; i-- {
		if b.Results[i].ID == id {
			return b.Results[i], true
		}
	}
	return LoadResult{}, false
}
