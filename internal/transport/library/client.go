// Package library is the HTTP client for the national library search and IIIF APIs.
package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/domain/record"
	"github.com/kailas-cloud/biblio/internal/metrics"
)

const (
	defaultRows  = "100"
	maxBodyBytes = 32 << 20

	endpointSearch   = "search"
	endpointManifest = "manifest"
	endpointImage    = "image"
	endpointStream   = "stream"
)

// paramNames maps catalog parameter names to the library API's names.
// Names not listed are sent as-is.
var paramNames = map[string]string{
	query.ParamQuery:      "query",
	"limit":               "rows",
	"offset":              "start",
	"materialType":        "material_type",
	"availabilityType":    "availability_type",
	"sortOrder":           "sort_order",
	"lang":                "language",
	"publicationYearFrom": "publication_year_from",
	"publicationYearTo":   "publication_year_to",
	"dateFrom":            "start_date",
	"dateTo":              "end_date",
}

// Config holds the library API settings.
type Config struct {
	APIKey       string
	SearchURL    string
	ImageBaseURL string
	ManifestURL  string // template with {recordId}
	RatePerSec   float64
	Burst        int
	HTTPClient   *http.Client
}

// Client talks to the library search, manifest and image endpoints.
// Safe for concurrent use.
type Client struct {
	http        *http.Client
	apiKey      string
	searchURL   string
	imageBase   string
	manifestURL string
	limiter     *rate.Limiter
}

// NewHTTPClient returns the shared outbound client with a tracing transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// New creates a library client. RatePerSec of zero disables throttling.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = NewHTTPClient(0)
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	return &Client{
		http:        hc,
		apiKey:      cfg.APIKey,
		searchURL:   cfg.SearchURL,
		imageBase:   strings.TrimRight(cfg.ImageBaseURL, "/"),
		manifestURL: cfg.ManifestURL,
		limiter:     limiter,
	}
}

// Search runs one structured query against the search endpoint.
// Reserved internal keys are never sent.
func (c *Client) Search(ctx context.Context, q query.StructuredQuery) (domain.ResultSet, error) {
	params := c.baseParams()
	for _, key := range q.Keys() {
		if query.IsReserved(key) {
			continue
		}
		name := key
		if mapped, ok := paramNames[key]; ok {
			name = mapped
		}
		params.Set(name, q[key])
	}

	body, _, err := c.get(ctx, endpointSearch, c.searchURL+"?"+params.Encode())
	if err != nil {
		return domain.ResultSet{}, err
	}
	return decodeResultSet(body)
}

// Manifest fetches and decodes the IIIF manifest of a record.
func (c *Client) Manifest(ctx context.Context, recordID string) (domain.Manifest, error) {
	body, err := c.RawManifest(ctx, recordID)
	if err != nil {
		return domain.Manifest{}, err
	}

	var m domain.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Manifest{}, fmt.Errorf("decode manifest %s: %v: %w", recordID, err, domain.ErrUpstream)
	}
	return m, nil
}

// RawManifest returns the manifest document unchanged.
func (c *Client) RawManifest(ctx context.Context, recordID string) (json.RawMessage, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, fmt.Errorf("record id is required: %w", domain.ErrInvalidRequest)
	}
	target := strings.ReplaceAll(c.manifestURL, "{recordId}", url.PathEscape(recordID))

	body, _, err := c.get(ctx, endpointManifest, target)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("manifest %s is not valid JSON: %w", recordID, domain.ErrUpstream)
	}
	return json.RawMessage(body), nil
}

// ImageRequest addresses one IIIF image rendition.
type ImageRequest struct {
	Identifier string
	Region     string
	Size       string
	Rotation   string
	Quality    string
	Format     string
}

func (r ImageRequest) withDefaults() ImageRequest {
	if r.Region == "" {
		r.Region = "full"
	}
	if r.Size == "" {
		r.Size = "max"
	}
	if r.Rotation == "" {
		r.Rotation = "0"
	}
	if r.Quality == "" {
		r.Quality = "default"
	}
	if r.Format == "" {
		r.Format = "jpg"
	}
	return r
}

// Image is a fetched image rendition.
type Image struct {
	ContentType string
	Data        []byte
}

// Image fetches {base}/{id}/{region}/{size}/{rotation}/{quality}.{format}.
func (c *Client) Image(ctx context.Context, req ImageRequest) (Image, error) {
	if strings.TrimSpace(req.Identifier) == "" {
		return Image{}, fmt.Errorf("image identifier is required: %w", domain.ErrInvalidRequest)
	}
	req = req.withDefaults()

	target := fmt.Sprintf("%s/%s/%s/%s/%s/%s.%s",
		c.imageBase,
		url.PathEscape(req.Identifier),
		iiifSegment(req.Region),
		iiifSegment(req.Size),
		iiifSegment(req.Rotation),
		iiifSegment(req.Quality),
		iiifSegment(req.Format),
	)

	body, contentType, err := c.get(ctx, endpointImage, target)
	if err != nil {
		return Image{}, err
	}
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "image/" + req.Format
	}
	return Image{ContentType: contentType, Data: body}, nil
}

// iiifSegment escapes a path segment but keeps commas, which IIIF uses in region and size.
func iiifSegment(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "%2C", ",")
}

// Stream formats accepted by Streams.
const (
	StreamMP4   = "mp4"
	StreamHLS   = "hls"
	StreamAudio = "audio"
	StreamAll   = "all"
)

var streamFields = []struct{ format, field string }{
	{StreamMP4, "stream_url_mp4"},
	{StreamHLS, "stream_url_hls"},
	{StreamAudio, "audio_url"},
}

// Streams looks up a record by id and returns its media links for the format.
func (c *Client) Streams(ctx context.Context, itemID, format string) (map[string]string, error) {
	if format == "" {
		format = StreamAll
	}
	switch format {
	case StreamMP4, StreamHLS, StreamAudio, StreamAll:
	default:
		return nil, fmt.Errorf("unsupported stream format %q: %w", format, domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("item id is required: %w", domain.ErrInvalidRequest)
	}

	params := c.baseParams()
	params.Set("query", "RecordId,exact,"+itemID)
	params.Set("rows", "1")

	body, _, err := c.get(ctx, endpointStream, c.searchURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	rs, err := decodeResultSet(body)
	if err != nil {
		return nil, err
	}
	if len(rs.Items) == 0 {
		return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}

	doc := rs.Items[0]
	streams := make(map[string]string, len(streamFields))
	for _, sf := range streamFields {
		if format != StreamAll && format != sf.format {
			continue
		}
		if link := record.Extract(doc, sf.field, ""); link != "" {
			streams[sf.format] = link
		}
	}
	return streams, nil
}

// HealthCheck verifies the search endpoint answers a one-row query.
func (c *Client) HealthCheck(ctx context.Context) error {
	params := c.baseParams()
	params.Set("query", query.DefaultQ)
	params.Set("rows", "1")

	if _, _, err := c.get(ctx, endpointSearch, c.searchURL+"?"+params.Encode()); err != nil {
		return fmt.Errorf("library search: %w", err)
	}
	return nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("output_format", "json")
	params.Set("rows", defaultRows)
	params.Set("start", "0")
	return params
}

// get performs a throttled GET and returns the body and content type of a 2xx response.
func (c *Client) get(ctx context.Context, endpoint, target string) ([]byte, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "throttled").Inc()
			return nil, "", fmt.Errorf("library %s: rate limit wait: %w: %w", endpoint, domain.ErrUpstream, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("library %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json, image/*;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, "", fmt.Errorf("library %s: %w: %w", endpoint, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("library %s: read body: %w: %w", endpoint, domain.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := domain.NewUpstreamStatus(resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", fmt.Errorf("library %s: %w: %w", endpoint, domain.ErrNotFound, statusErr)
		}
		return nil, "", fmt.Errorf("library %s: %w", endpoint, statusErr)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// decodeResultSet accepts the {total_results, items} envelope or a bare item list.
func decodeResultSet(body []byte) (domain.ResultSet, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return domain.ResultSet{}, fmt.Errorf("decode search response: %v: %w", err, domain.ErrUpstream)
	}

	switch v := raw.(type) {
	case []any:
		items := toRecords(v)
		return domain.ResultSet{TotalResults: len(items), Items: items}, nil
	case map[string]any:
		list, _ := v["items"].([]any)
		items := toRecords(list)
		return domain.ResultSet{TotalResults: totalResults(v["total_results"]), Items: items}, nil
	default:
		return domain.ResultSet{}, fmt.Errorf("unexpected search response shape: %w", domain.ErrUpstream)
	}
}

func toRecords(list []any) []record.Record {
	out := make([]record.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, record.Record(m))
		}
	}
	return out
}

// totalResults reads total_results; missing or malformed counts as zero.
func totalResults(raw any) int {
	var n int64
	switch v := raw.(type) {
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0
			}
			parsed = int64(f)
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return int(n)
}
