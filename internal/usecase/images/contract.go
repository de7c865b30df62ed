package images

import (
	"context"

	"github.com/kailas-cloud/biblio/internal/domain"
)

// ManifestFetcher retrieves the IIIF manifest of a record.
type ManifestFetcher interface {
	Manifest(ctx context.Context, recordID string) (domain.Manifest, error)
}
