package assets

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownItemType     = errors.New("unknown manifest item type")
	ErrInvalidItem         = errors.New("invalid manifest item")
	ErrManifestUnavailable = errors.New("manifest unavailable")
	ErrNotAnImage          = errors.New("response is not a decodable image")
)

// StatusError is returned for a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s failed: %d %s", e.URL, e.StatusCode, e.Status)
}
