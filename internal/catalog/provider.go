package catalog

import (
	"context"
	"errors"

	"github.com/reelmatch/backend/internal/models"
)

// Provider returns a snapshot of addressable media items for a set of
// libraries.
type Provider interface {
	GetItems(ctx context.Context, libraryKeys []string, mediaType string) ([]models.MediaItem, error)
}

var (
	// ErrProviderUnavailable indicates the catalog provider is not configured.
	ErrProviderUnavailable = errors.New("media catalog provider unavailable")
	// ErrUpstream indicates the media server rejected or failed the request.
	ErrUpstream = errors.New("media server request failed")
)
