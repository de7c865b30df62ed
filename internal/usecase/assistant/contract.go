package assistant

import (
	"context"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/domain/record"
)

// Planner turns a question into structured queries.
type Planner interface {
	Plan(ctx context.Context, userQuery string) []query.StructuredQuery
}

// FanOut executes queries concurrently, order-preserving.
type FanOut interface {
	SearchAll(ctx context.Context, queries []query.StructuredQuery) []domain.ResultSet
}

// ImageResolver finds images for records without a direct thumbnail.
type ImageResolver interface {
	Resolve(ctx context.Context, records []record.Record) []domain.ImageInfo
}

// Summarizer produces the final answer.
type Summarizer interface {
	Summarize(ctx context.Context, userQuery string, sets []domain.ResultSet, images []domain.ImageInfo) (domain.AnswerPayload, error)
	Language() string
}
