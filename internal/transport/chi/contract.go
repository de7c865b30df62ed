package chi

import (
	"context"
	"encoding/json"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/transport/library"
	"github.com/kailas-cloud/biblio/internal/usecase/assistant"
	"github.com/kailas-cloud/biblio/internal/usecase/health"
)

// Assistant runs the question-answering pipeline.
type Assistant interface {
	PlanAndSearch(ctx context.Context, question string) ([]query.StructuredQuery, []domain.ResultSet, error)
	ResolveImages(ctx context.Context, sets []domain.ResultSet) []domain.ImageInfo
	Summarize(ctx context.Context, question string, sets []domain.ResultSet, images []domain.ImageInfo) (domain.AnswerPayload, error)
	Ask(ctx context.Context, question string) (assistant.Answer, error)
}

// Library proxies the library API endpoints.
type Library interface {
	Search(ctx context.Context, q query.StructuredQuery) (domain.ResultSet, error)
	RawManifest(ctx context.Context, recordID string) (json.RawMessage, error)
	Image(ctx context.Context, req library.ImageRequest) (library.Image, error)
	Streams(ctx context.Context, itemID, format string) (map[string]string, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}
