// Package assistant composes the planning, search, image and summary stages.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/logger"
	"github.com/kailas-cloud/biblio/internal/usecase/summary"
)

// Answer is the outcome of a full pipeline run.
type Answer struct {
	Queries []query.StructuredQuery `json:"queries"`
	Results []domain.ResultSet      `json:"results"`
	Images  []domain.ImageInfo      `json:"images"`
	Answer  domain.AnswerPayload    `json:"answer"`
}

// Service is the pipeline entry point used by the HTTP layer.
type Service struct {
	planner    Planner
	fanOut     FanOut
	images     ImageResolver
	summarizer Summarizer
}

// New creates the assistant.
func New(planner Planner, fanOut FanOut, images ImageResolver, summarizer Summarizer) *Service {
	return &Service{planner: planner, fanOut: fanOut, images: images, summarizer: summarizer}
}

// PlanAndSearch plans the question and runs every resulting query.
func (s *Service) PlanAndSearch(ctx context.Context, question string) ([]query.StructuredQuery, []domain.ResultSet, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, domain.ErrEmptyQuestion
	}

	queries := s.planner.Plan(ctx, question)
	results := s.fanOut.SearchAll(ctx, queries)
	return queries, results, nil
}

// ResolveImages aggregates the items of all result sets and resolves their images.
func (s *Service) ResolveImages(ctx context.Context, sets []domain.ResultSet) []domain.ImageInfo {
	return s.images.Resolve(ctx, domain.Aggregate(sets))
}

// Summarize produces the answer for already gathered results.
func (s *Service) Summarize(
	ctx context.Context, question string, sets []domain.ResultSet, images []domain.ImageInfo,
) (domain.AnswerPayload, error) {
	answer, err := s.summarizer.Summarize(ctx, question, sets, images)
	if err != nil {
		return domain.AnswerPayload{}, fmt.Errorf("summarize: %w", err)
	}
	return answer, nil
}

// Ask runs every stage. When no query returned items the summary stage is
// skipped and a localized "no results" answer is returned.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	queries, results, err := s.PlanAndSearch(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	items := domain.Aggregate(results)
	if len(items) == 0 {
		log.Info("no items found, skipping summary", zap.Int("queries", len(queries)))
		return Answer{
			Queries: queries,
			Results: results,
			Images:  []domain.ImageInfo{},
			Answer:  summary.Fallback(s.summarizer.Language(), summary.ReasonNoResults),
		}, nil
	}

	images := s.images.Resolve(ctx, items)

	answer, err := s.Summarize(ctx, question, results, images)
	if err != nil {
		return Answer{}, err
	}

	log.Info("question answered",
		zap.Int("queries", len(queries)),
		zap.Int("items", len(items)),
		zap.Int("images", len(images)),
		zap.Int("cited", len(answer.RecordIDs)),
		zap.Duration("duration", time.Since(start)),
	)

	return Answer{Queries: queries, Results: results, Images: images, Answer: answer}, nil
}
