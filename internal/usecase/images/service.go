// Package images resolves a display image for records that lack a direct thumbnail.
package images

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/record"
	"github.com/kailas-cloud/biblio/internal/logger"
	"github.com/kailas-cloud/biblio/internal/metrics"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultMaxConcurrency = 8
)

// Options tunes the resolver.
type Options struct {
	// Timeout bounds each manifest fetch.
	Timeout        time.Duration
	MaxConcurrency int
	Debug          bool
}

// Service looks up images in record manifests.
type Service struct {
	fetcher ManifestFetcher
	opts    Options
}

// New creates an image resolver.
func New(fetcher ManifestFetcher, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Service{fetcher: fetcher, opts: opts}
}

type candidate struct {
	id    string
	title string
}

// Resolve returns at most one ImageInfo per record id, for records whose
// thumbnail is not already an absolute URL. Order is unspecified.
func (s *Service) Resolve(ctx context.Context, records []record.Record) []domain.ImageInfo {
	ctx = logger.Stage(ctx, "images")
	log := logger.FromContext(ctx)
	candidates := s.candidates(records)
	if len(candidates) == 0 {
		return []domain.ImageInfo{}
	}

	found := make([]*domain.ImageInfo, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)

	for idx, c := range candidates {
		g.Go(func() error {
			unitCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()

			m, err := s.fetcher.Manifest(unitCtx, c.id)
			if err != nil {
				metrics.ImagesTotal.WithLabelValues("error").Inc()
				log.Debug("manifest fetch failed", zap.String("record_id", c.id), zap.Error(err))
				return nil
			}

			url, ok := m.FirstImage()
			if !ok {
				metrics.ImagesTotal.WithLabelValues("missing").Inc()
				if s.opts.Debug {
					log.Info("no admissible image in manifest", zap.String("record_id", c.id))
				}
				return nil
			}

			metrics.ImagesTotal.WithLabelValues("resolved").Inc()
			if s.opts.Debug {
				log.Info("manifest image", zap.String("record_id", c.id), zap.String("url", url))
			}
			found[idx] = &domain.ImageInfo{RecordID: c.id, Title: c.title, ThumbnailURL: url}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.ImageInfo, 0, len(found))
	for _, info := range found {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out
}

// candidates partitions records: direct thumbnails need nothing, records
// without an id are skipped, the rest are deduplicated by id.
func (s *Service) candidates(records []record.Record) []candidate {
	seen := make(map[string]struct{}, len(records))
	out := make([]candidate, 0, len(records))

	for _, rec := range records {
		if HasDirectImage(rec) {
			metrics.ImagesTotal.WithLabelValues("direct").Inc()
			continue
		}
		id := rec.ID()
		if id == "" {
			metrics.ImagesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, candidate{id: id, title: rec.Title()})
	}
	return out
}

// HasDirectImage reports whether the record's thumbnail is an absolute http(s) URL.
func HasDirectImage(rec record.Record) bool {
	thumb := strings.ToLower(rec.Thumbnail())
	return strings.HasPrefix(thumb, "http://") || strings.HasPrefix(thumb, "https://")
}
