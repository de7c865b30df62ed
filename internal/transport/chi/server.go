// Package chi exposes the pipeline and the library proxy over HTTP.
package chi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/logger"
	"github.com/kailas-cloud/biblio/internal/transport/library"
	"github.com/kailas-cloud/biblio/internal/usecase/health"
)

const (
	defaultLimit = 100
	maxLimit     = 500
	maxBodyBytes = 10 << 20
)

// proxyParams are bound explicitly by SearchProxy and never copied from the catalog.
var proxyParams = map[string]struct{}{
	"q":            {},
	"limit":        {},
	"offset":       {},
	"count_only":   {},
	"request_type": {},
}

// Server serves the HTTP API.
type Server struct {
	assistant     Assistant
	library       Library
	health        HealthChecker
	allowed       query.ParamSet
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. allowed lists the catalog parameters
// the search proxy forwards.
func NewServer(
	assistant Assistant,
	library Library,
	health HealthChecker,
	allowed query.ParamSet,
	logger *zap.Logger,
) *Server {
	return &Server{
		assistant:     assistant,
		library:       library,
		health:        health,
		allowed:       allowed,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.SearchProxy)
		r.Get("/manifest/{recordId}", s.GetManifest)
		r.Get("/image/{identifier}", s.GetImage)
		r.Get("/stream/{itemId}", s.GetStream)
		r.Post("/plan", s.Plan)
		r.Post("/images", s.ResolveImages)
		r.Post("/query-ai", s.QueryAI)
		r.Post("/ask", s.Ask)
	})
}

// SearchProxy handles GET /api/v1/search.
func (s *Server) SearchProxy(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	var (
		q         string
		limit     *int
		offset    *int
		countOnly *bool
	)
	if err := runtime.BindQueryParameter("form", true, true, "q", values, &q); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter q: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", values, &limit); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter limit: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", values, &offset); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter offset: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "count_only", values, &countOnly); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter count_only: "+err.Error())
		return
	}

	normalized, ok := query.NormalizeQ(q)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "q must have the form field,operator,value")
		return
	}

	rows := defaultLimit
	if limit != nil {
		if *limit < 1 || *limit > maxLimit {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxLimit))
			return
		}
		rows = *limit
	}
	start := 0
	if offset != nil {
		if *offset < 0 {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "offset must be >= 0")
			return
		}
		start = *offset
	}

	sq := query.StructuredQuery{
		query.ParamQuery: normalized,
		"limit":          strconv.Itoa(rows),
		"offset":         strconv.Itoa(start),
	}
	for _, name := range s.allowed.Names() {
		if _, bound := proxyParams[name]; bound {
			continue
		}
		if v := strings.TrimSpace(values.Get(name)); v != "" {
			sq[name] = v
		}
	}

	rs, err := s.library.Search(r.Context(), sq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if countOnly != nil && *countOnly {
		writeJSON(w, http.StatusOK, map[string]int{"total_results": rs.TotalResults})
		return
	}
	if len(rs.Items) > rows {
		rs.Items = rs.Items[:rows]
	}
	writeJSON(w, http.StatusOK, rs)
}

// GetManifest handles GET /api/v1/manifest/{recordId}.
func (s *Server) GetManifest(w http.ResponseWriter, r *http.Request) {
	var recordID string
	if err := bindPath(r, "recordId", &recordID); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	raw, err := s.library.RawManifest(r.Context(), recordID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// GetImage handles GET /api/v1/image/{identifier}.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	var identifier string
	if err := bindPath(r, "identifier", &identifier); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	values := r.URL.Query()
	var (
		region, size, quality, format *string
		rotation                      *float64
	)
	for name, dest := range map[string]**string{
		"region":  &region,
		"size":    &size,
		"quality": &quality,
		"format":  &format,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, values, dest); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter "+name+": "+err.Error())
			return
		}
	}
	if err := runtime.BindQueryParameter("form", true, false, "rotation", values, &rotation); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter rotation: "+err.Error())
		return
	}

	req := library.ImageRequest{
		Identifier: identifier,
		Region:     deref(region),
		Size:       deref(size),
		Quality:    deref(quality),
		Format:     deref(format),
	}
	if rotation != nil {
		req.Rotation = strconv.FormatFloat(*rotation, 'f', -1, 64)
	}

	img, err := s.library.Image(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// GetStream handles GET /api/v1/stream/{itemId}.
func (s *Server) GetStream(w http.ResponseWriter, r *http.Request) {
	var itemID string
	if err := bindPath(r, "itemId", &itemID); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	var format *string
	if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &format); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter format: "+err.Error())
		return
	}

	streams, err := s.library.Streams(r.Context(), itemID, deref(format))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

// QuestionRequest is the body of /plan and /ask.
type QuestionRequest struct {
	Question string `json:"question"`
}

// PlanResponse is the body returned by /plan.
type PlanResponse struct {
	Queries []query.StructuredQuery `json:"queries"`
	Results []domain.ResultSet      `json:"results"`
}

// Plan handles POST /api/v1/plan.
func (s *Server) Plan(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	queries, results, err := s.assistant.PlanAndSearch(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Queries: queries, Results: results})
}

// ImagesRequest is the body of /images: the result sets returned by /plan.
type ImagesRequest struct {
	Results []domain.ResultSet `json:"results"`
}

// ImagesResponse is the body returned by /images. Its images feed items_images of /query-ai.
type ImagesResponse struct {
	Images []domain.ImageInfo `json:"images"`
}

// ResolveImages handles POST /api/v1/images.
func (s *Server) ResolveImages(w http.ResponseWriter, r *http.Request) {
	var req ImagesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	images := s.assistant.ResolveImages(r.Context(), req.Results)
	if images == nil {
		images = []domain.ImageInfo{}
	}
	writeJSON(w, http.StatusOK, ImagesResponse{Images: images})
}

// SummaryRequest is the body of /query-ai.
type SummaryRequest struct {
	Prompt  string `json:"prompt"`
	Context *struct {
		Results []domain.ResultSet `json:"results"`
	} `json:"context"`
	ItemsImages []domain.ImageInfo `json:"items_images"`
}

// QueryAI handles POST /api/v1/query-ai.
func (s *Server) QueryAI(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Context == nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			"Missing context: provide search results in 'context' field to summarize")
		return
	}

	answer, err := s.assistant.Summarize(r.Context(), req.Prompt, req.Context.Results, req.ItemsImages)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Ask handles POST /api/v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	answer, err := s.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// HealthResponse is the body returned by /health.
type HealthResponse struct {
	Status  health.Status                 `json:"status"`
	Version string                        `json:"version"`
	Checks  map[string]health.CheckResult `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != health.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  report.Status,
		Version: report.Version,
		Checks:  report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// requestLogger prefers the request-scoped logger; the nop logger never enables any level.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l := logger.FromContext(r.Context()); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return s.logger
}

// bindPath binds a required simple-style path parameter.
func bindPath(r *http.Request, name string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	if strings.TrimSpace(*dest) == "" {
		return fmt.Errorf("parameter %s is required", name)
	}
	return nil
}

// decodeBody decodes a JSON body, keeping numbers as json.Number so record ids survive intact.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
