package services

import (
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
)

// SessionService holds the batch the application is currently running on.
type SessionService struct {
	mu       sync.RWMutex
	batch    *assets.Batch
	expected []string
	logger   *logging.ChanneledLogger
}

// NewSessionService creates a new session service. expected lists the ids
// the application relies on; missing ones are logged when a batch arrives.
func NewSessionService(logger *logging.ChanneledLogger, expected []string) *SessionService {
	return &SessionService{
		logger:   logger,
		expected: expected,
		batch:    assets.NewBatch(""),
	}
}

// Start hands a finished batch to the application.
func (s *SessionService) Start(batch *assets.Batch) {
	if batch == nil {
		batch = assets.NewBatch("")
	}
	s.mu.Lock()
	s.batch = batch
	s.mu.Unlock()

	logger := s.logger.WithBatch(logging.ChannelSystem, batch.ID)
	for _, id := range s.expected {
		switch {
		case !batch.Assets.Has(id):
			logger.Warn("Expected asset not declared in manifest", "itemId", id)
		case !batch.Assets.Loaded(id):
			logger.Warn("Expected asset failed to load", "itemId", id)
		}
	}
	logger.Info("Session started", "assets", len(batch.Assets), "failed", len(batch.FailedIDs))
}

// Batch returns the current batch. It is never nil.
func (s *SessionService) Batch() *assets.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batch
}

// Assets returns the current Assets bag.
func (s *SessionService) Assets() assets.Assets {
	return s.Batch().Assets
}

// AssetDescription is the API view of one loaded asset.
type AssetDescription struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"` // "image", "json" or "missing"
	URL    string `json:"url,omitempty"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
}

// SessionSummary describes the current batch.
type SessionSummary struct {
	BatchID       string             `json:"batchId"`
	StartedAt     time.Time          `json:"startedAt"`
	Duration      string             `json:"duration"`
	Assets        []AssetDescription `json:"assets"`
	FailedIDs     []string           `json:"failedIds"`
	DuplicateIDs  []string           `json:"duplicateIds"`
	MissingIDs    []string           `json:"missingExpectedIds"`
	ManifestError string             `json:"manifestError,omitempty"`
}

// Describe summarises the current batch, sorted by id.
func (s *SessionService) Describe() SessionSummary {
	batch := s.Batch()

	ids := make([]string, 0, len(batch.Assets))
	for id := range batch.Assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	descriptions := make([]AssetDescription, 0, len(ids))
	for _, id := range ids {
		descriptions = append(descriptions, DescribeAsset(id, batch.Assets[id]))
	}

	summary := SessionSummary{
		BatchID:      batch.ID,
		StartedAt:    batch.StartedAt,
		Duration:     batch.Duration.String(),
		Assets:       descriptions,
		FailedIDs:    nonNil(batch.FailedIDs),
		DuplicateIDs: nonNil(batch.DuplicateIDs),
		MissingIDs:   []string{},
	}
	for _, id := range s.expected {
		if !batch.Assets.Loaded(id) {
			summary.MissingIDs = append(summary.MissingIDs, id)
		}
	}
	if batch.ManifestErr != nil {
		summary.ManifestError = batch.ManifestErr.Error()
	}
	return summary
}

// DescribeAsset maps a value from Assets to its API view.
func DescribeAsset(id string, value any) AssetDescription {
	switch v := value.(type) {
	case nil:
		return AssetDescription{ID: id, Kind: "missing"}
	case *assets.ImageAsset:
		return AssetDescription{
			ID:     id,
			Kind:   string(assets.ItemTypeImage),
			URL:    v.URL,
			Format: v.Format,
			Width:  v.Width,
			Height: v.Height,
			Bytes:  v.Bytes,
		}
	default:
		return AssetDescription{ID: id, Kind: string(assets.ItemTypeJSON)}
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
