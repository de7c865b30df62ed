// Package search fans structured queries out to the library search API.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/logger"
)

const (
	defaultTimeout        = 35 * time.Second
	defaultMaxConcurrency = 8
)

// Options tunes the fan-out.
type Options struct {
	// Timeout bounds each individual search.
	Timeout        time.Duration
	MaxConcurrency int
	Debug          bool
}

// Service runs every query concurrently and gathers results in input order.
type Service struct {
	searcher Searcher
	allowed  query.ParamSet
	opts     Options
}

// New creates a fan-out service over the given allow-list.
func New(searcher Searcher, allowed query.ParamSet, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Service{searcher: searcher, allowed: allowed, opts: opts}
}

// SearchAll returns one ResultSet per query at the same position.
// A failed search yields an empty ResultSet at its slot and never affects siblings.
func (s *Service) SearchAll(ctx context.Context, queries []query.StructuredQuery) []domain.ResultSet {
	ctx = logger.Stage(ctx, "search")
	log := logger.FromContext(ctx)
	results := make([]domain.ResultSet, len(queries))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)

	for idx, q := range queries {
		g.Go(func() error {
			params := s.Outbound(q)
			if s.opts.Debug {
				log.Info("search params", zap.Int("query", idx), zap.Any("params", params))
			}

			unitCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()

			rs, err := s.searcher.Search(unitCtx, params)
			if err != nil {
				log.Warn("search failed, using empty result",
					zap.Int("query", idx),
					zap.String("q", params.Q()),
					zap.Error(err),
				)
				results[idx] = domain.EmptyResultSet()
				return nil // Don't fail the group on individual errors.
			}
			if rs.Items == nil {
				rs.Items = domain.EmptyResultSet().Items
			}
			results[idx] = rs
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Outbound builds the parameters actually sent for q: allowed, non-empty,
// non-reserved keys, with "q" re-validated against the field,operator,value grammar.
func (s *Service) Outbound(q query.StructuredQuery) query.StructuredQuery {
	out := make(query.StructuredQuery, len(q))
	for k, v := range q {
		v = strings.TrimSpace(v)
		if v == "" || !s.allowed.Has(k) || query.IsReserved(k) {
			continue
		}
		out[k] = v
	}
	if normalized, ok := query.NormalizeQ(out[query.ParamQuery]); ok {
		out[query.ParamQuery] = normalized
	} else {
		out[query.ParamQuery] = query.DefaultQ
	}
	return out
}
