package search

import (
	"context"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
)

// Searcher executes one structured query against the library search API.
type Searcher interface {
	Search(ctx context.Context, q query.StructuredQuery) (domain.ResultSet, error)
}
