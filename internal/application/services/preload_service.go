// Package services provides application-level orchestration services
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/media"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/transport"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// ManifestSource supplies the manifest for Init.
type ManifestSource interface {
	Load(ctx context.Context) (*assets.Manifest, error)
	URL() string
}

// ProgressPublisher receives progress events as items settle.
type ProgressPublisher interface {
	Publish(event assets.ProgressEvent)
}

// PreloadConfig holds the hardening knobs.
type PreloadConfig struct {
	ItemTimeout    time.Duration // 0 waits forever
	MaxConcurrency int           // 0 is unbounded
}

// PreloadService loads every manifest item concurrently and folds the
// outcomes into one keyed Assets bag.
type PreloadService struct {
	images      *caching.ImageCache
	fetcher     media.Getter
	manifests   ManifestSource
	publisher   ProgressPublisher
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	config      PreloadConfig
}

// NewPreloadService creates a new preload service. publisher may be nil.
func NewPreloadService(
	images *caching.ImageCache,
	fetcher media.Getter,
	manifests ManifestSource,
	publisher ProgressPublisher,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
	config PreloadConfig,
) *PreloadService {
	return &PreloadService{
		images:      images,
		fetcher:     fetcher,
		manifests:   manifests,
		publisher:   publisher,
		logger:      logger,
		perfTracker: perfTracker,
		config:      config,
	}
}

// Init fetches the manifest and preloads it. A manifest failure degrades to
// an empty batch with ManifestErr set; Init itself never fails.
func (s *PreloadService) Init(ctx context.Context) *assets.Batch {
	m, err := s.manifests.Load(ctx)
	if err != nil {
		s.logger.Manifest().Warn("Manifest unavailable, continuing with no assets",
			"url", s.manifests.URL(), "error", err)
	} else {
		s.logger.Manifest().Info("Manifest loaded", "url", s.manifests.URL(), "items", m.Len())
	}
	return s.preload(ctx, m, err)
}

// Preload loads every item of m. It waits for all items to settle and never
// fails as a whole: failed items map to nil and are listed in FailedIDs.
func (s *PreloadService) Preload(ctx context.Context, m *assets.Manifest) *assets.Batch {
	return s.preload(ctx, m, nil)
}

func (s *PreloadService) preload(ctx context.Context, m *assets.Manifest, manifestErr error) *assets.Batch {
	batch := assets.NewBatch(ulid.Make().String())
	batch.ManifestErr = manifestErr
	logger := s.logger.WithBatch(logging.ChannelPreload, batch.ID)

	marker := s.perfTracker.StartOperation("preload:batch", batch.ID)
	defer s.perfTracker.CompleteOperation(marker)

	total := m.Len()
	marker.AddMetadata("items", total)

	if total == 0 {
		batch.Duration = time.Since(batch.StartedAt)
		logger.Info("Nothing to preload")
		s.publish(assets.ProgressEvent{BatchID: batch.ID, Type: assets.ProgressBatchDone, Duration: batch.Duration})
		return batch
	}

	if dups := m.DuplicateIDs(); len(dups) > 0 {
		batch.DuplicateIDs = dups
		logger.Warn("Duplicate asset ids in manifest, last entry wins", "ids", dups)
	}

	results := make([]assets.LoadResult, total)
	var settled atomic.Int32

	var g errgroup.Group
	if s.config.MaxConcurrency > 0 {
		g.SetLimit(s.config.MaxConcurrency)
	}
	for i, item := range m.Items {
		i, item := i, item
		g.Go(func() error {
			results[i] = s.loadItem(ctx, batch.ID, item, marker)
			r := results[i]
			s.publish(assets.ProgressEvent{
				BatchID:  batch.ID,
				Type:     assets.ProgressItemSettled,
				ItemID:   r.ID,
				ItemType: r.Type,
				Failed:   r.Failed,
				Error:    r.Error(),
				Settled:  int(settled.Add(1)),
				Total:    total,
				Duration: r.Duration,
			})
			return nil
		})
	}
	_ = g.Wait()

	s.fold(batch, results)
	batch.Duration = time.Since(batch.StartedAt)

	if len(batch.FailedIDs) > 0 {
		logger.Warn("Some assets failed to load", "failed", batch.FailedIDs, "total", total)
		marker.SetSuccess(false)
	}
	marker.AddMetadata("failed", len(batch.FailedIDs))
	logger.Info("Preload complete",
		"items", total,
		"failed", len(batch.FailedIDs),
		"duration", batch.Duration)

	s.publish(assets.ProgressEvent{
		BatchID:  batch.ID,
		Type:     assets.ProgressBatchDone,
		Failed:   len(batch.FailedIDs) > 0,
		Settled:  total,
		Total:    total,
		Duration: batch.Duration,
	})
	return batch
}

// fold writes results into the batch in manifest order. Ids declared twice
// keep the later entry's outcome.
func (s *PreloadService) fold(batch *assets.Batch, results []assets.LoadResult) {
	failed := make(map[string]bool, len(results))
	order := make([]string, 0, len(results))

	for _, r := range results {
		batch.Results = append(batch.Results, r)
		if _, seen := failed[r.ID]; !seen {
			order = append(order, r.ID)
		}
		failed[r.ID] = r.Failed
		if r.Failed {
			batch.Assets[r.ID] = nil
		} else {
			batch.Assets[r.ID] = r.Asset
		}
	}

	for _, id := range order {
		if failed[id] {
			batch.FailedIDs = append(batch.FailedIDs, id)
		}
	}
}

// loadItem loads one item and converts every error or panic into a failed
// result.
func (s *PreloadService) loadItem(ctx context.Context, batchID string, item assets.Item, batchMarker *performance.Marker) (result assets.LoadResult) {
	start := time.Now()
	if item == nil {
		return assets.LoadResult{Failed: true, Err: fmt.Errorf("%w: nil item", assets.ErrUnknownItemType)}
	}
	result = assets.LoadResult{ID: item.ItemID(), Type: item.Type(), URL: item.ItemURL()}

	defer func() {
		if r := recover(); r != nil {
			result.Asset = nil
			result.Failed = true
			result.Err = fmt.Errorf("loading %s panicked: %v", result.ID, r)
		}
		result.Duration = time.Since(start)
		if result.Failed {
			s.logger.WithBatch(logging.ChannelPreload, batchID).Debug("Asset failed",
				"itemId", result.ID, "url", result.URL, "error", result.Error())
		}
	}()

	if s.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ItemTimeout)
		defer cancel()
	}

	var (
		asset any
		err   error
	)
	switch it := item.(type) {
	case assets.ImageItem:
		asset, err = s.loadImage(ctx, batchID, it, batchMarker)
	case assets.JSONItem:
		asset, err = s.loadJSON(ctx, batchID, it)
	case assets.UnknownItem:
		err = fmt.Errorf("%w %q for item %s", assets.ErrUnknownItemType, it.RawType, it.ID)
	case assets.InvalidItem:
		err = it.Err
	default:
		err = fmt.Errorf("%w %T for item %s", assets.ErrUnknownItemType, item, item.ItemID())
	}

	if err != nil {
		result.Failed = true
		result.Err = err
		return result
	}
	result.Asset = asset
	return result
}

func (s *PreloadService) loadImage(ctx context.Context, batchID string, item assets.ImageItem, batchMarker *performance.Marker) (*assets.ImageAsset, error) {
	marker := s.perfTracker.StartOperation("preload:image", batchID)
	defer s.perfTracker.CompleteOperation(marker)
	marker.AddMetadata("id", item.ID)
	marker.AddMetadata("url", item.URL)

	pending, hit := s.images.GetOrCreate(item.URL, item.CrossOrigin)
	s.logger.LogCacheOperation("image", item.URL, hit)
	if hit {
		marker.AddCacheHit()
		batchMarker.AddCacheHit()
	} else {
		marker.AddCacheMiss()
		batchMarker.AddCacheMiss()
	}

	img, err := pending.Wait(ctx)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	return img, nil
}

// loadJSON fetches a json item fresh every time; json payloads are never
// cached.
func (s *PreloadService) loadJSON(ctx context.Context, batchID string, item assets.JSONItem) (any, error) {
	marker := s.perfTracker.StartOperation("preload:json", batchID)
	defer s.perfTracker.CompleteOperation(marker)
	marker.AddMetadata("id", item.ID)
	marker.AddMetadata("url", item.URL)

	resp, err := s.fetcher.Get(ctx, item.URL, transport.RequestOptions{Accept: "application/json"})
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		err = fmt.Errorf("failed to parse json asset %s: %w", item.URL, err)
		marker.SetError(err)
		return nil, err
	}
	return payload, nil
}

func (s *PreloadService) publish(event assets.ProgressEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

// CacheStats reports lifetime dedup cache counters.
func (s *PreloadService) CacheStats() map[string]any {
	hits, misses := s.images.Stats()
	return map[string]any{
		"entries": s.images.Len(),
		"hits":    hits,
		"misses":  misses,
	}
}
