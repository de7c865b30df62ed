// Package planner turns a free-form question into structured search queries.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/logger"
	"github.com/kailas-cloud/biblio/internal/metrics"
)

const stage = "planner"

var (
	arrayPattern  = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

	errNoJSON     = errors.New("no JSON object or array in reply")
	errEmptyArray = errors.New("reply array is empty")
)

// Options tunes the planner.
type Options struct {
	Temperature float32
	// Debug logs the raw model reply and the final queries at info level.
	Debug bool
}

// Service plans structured queries with a language model.
type Service struct {
	llm     Completer
	catalog query.Catalog
	allowed query.ParamSet
	opts    Options
}

// New creates a planner bound to a parameter catalog.
func New(llm Completer, catalog query.Catalog, opts Options) *Service {
	return &Service{
		llm:     llm,
		catalog: catalog,
		allowed: catalog.Allowed(),
		opts:    opts,
	}
}

// Allowed returns the allow-list the planner sanitizes against.
func (s *Service) Allowed() query.ParamSet { return s.allowed }

// Plan returns at least one sanitized query. Model failures degrade to the
// default query and are never returned as errors.
func (s *Service) Plan(ctx context.Context, userQuery string) []query.StructuredQuery {
	ctx = logger.Stage(ctx, stage)
	log := logger.FromContext(ctx)

	res, err := s.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      buildPrompt(s.catalog, s.allowed, userQuery),
		Temperature: s.opts.Temperature,
		Stage:       stage,
	})
	if err != nil {
		log.Warn("planner model call failed, using default query", zap.Error(err))
		return s.fallback("llm_error")
	}

	if s.opts.Debug {
		log.Info("planner raw reply", zap.String("reply", res.Text))
	}

	candidates, err := parseReply(res.Text)
	if err != nil {
		reason := "parse_error"
		if errors.Is(err, errNoJSON) {
			reason = "no_json"
		}
		log.Warn("planner reply unusable, using default query",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return s.fallback(reason)
	}

	queries := make([]query.StructuredQuery, len(candidates))
	for i, c := range candidates {
		m, _ := c.(map[string]any)
		queries[i] = query.Sanitize(m, s.allowed)
	}

	metrics.PlannedQueries.Observe(float64(len(queries)))
	if s.opts.Debug {
		log.Info("planner queries", zap.Any("queries", queries))
	}
	return queries
}

func (s *Service) fallback(reason string) []query.StructuredQuery {
	metrics.PlannerFallbacksTotal.WithLabelValues(reason).Inc()
	metrics.PlannedQueries.Observe(1)
	return []query.StructuredQuery{query.Sanitize(nil, s.allowed)}
}

// parseReply extracts the candidate JSON span and decodes it into a list.
// A single object is wrapped into a one-element list.
func parseReply(reply string) ([]any, error) {
	span := arrayPattern.FindString(reply)
	if span == "" {
		span = objectPattern.FindString(reply)
	}
	if span == "" {
		return nil, errNoJSON
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(span)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode candidate: trailing data after JSON value")
	}

	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, errEmptyArray
		}
		return t, nil
	case map[string]any:
		return []any{t}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON type %T", v)
	}
}
