package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchPath is the OpenAPI path whose parameters form the catalog.
const SearchPath = "/api/v1/search"

// Overrides replace schema descriptions for parameters the planner must use precisely.
var Overrides = map[string]string{
	ParamQuery: "Main search query. Format: 'field,operator,value'.\n" +
		"Valid fields: **'any'**, **'title'**, **'desc'**, **'creator'**, **'subject'**, " +
		"**'dr_s'**, **'dr_e'**.\n" +
		"Valid operators: **'contains'**, **'exact'**.\n" +
		"Examples: 'creator,contains,David Ben-Gurion', 'subject,exact,History'.",
	"materialType": "Material type. Only use: 'books', 'articles', 'images', 'audio', " +
		"'videos', 'maps', 'journals', 'manuscripts', 'rareBooks'.",
	"request_type": "Special request type for media (e.g., 'image', 'video', 'audio').",
}

// manualParams are used when the schema defines no search parameters.
var manualParams = []Param{
	{Name: ParamQuery, Description: "Search query, e.g. 'creator,contains,David Ben-Gurion'"},
	{Name: "materialType", Description: "Type of material (e.g., books, articles)."},
	{Name: "availabilityType", Description: "Availability (e.g., online, physical)."},
	{Name: "sortField", Description: "Field to sort by (e.g., title, creator)."},
	{Name: "sortOrder", Description: "Sort order (asc, desc)."},
	{Name: "lang", Description: "Language of materials (e.g., heb, eng)."},
	{Name: "creator", Description: "Creator of the item."},
	{Name: "subject", Description: "Subject of the item."},
	{Name: "publisher", Description: "Publisher of the item."},
	{Name: "publicationYearFrom", Description: "Start year of publication."},
	{Name: "publicationYearTo", Description: "End year of publication."},
	{Name: "collection", Description: "Collection name."},
	{Name: "contributor", Description: "Contributor to the item."},
	{Name: "isbn", Description: "ISBN value."},
	{Name: "issn", Description: "ISSN value."},
	{Name: "dateFrom", Description: "Start date (YYYY-MM-DD or YYYY)."},
	{Name: "dateTo", Description: "End date (YYYY-MM-DD or YYYY)."},
	{Name: "request_type", Description: "Internal type for media requests (image, video, audio)."},
}

// defaultNames are used when the schema cannot be read at all.
var defaultNames = []string{
	ParamQuery, "materialType", "availabilityType", "sortField", "sortOrder", "lang",
	"creator", "subject", "publisher", "publicationYearFrom", "publicationYearTo",
	"collection", "contributor", "isbn", "issn", "dateFrom", "dateTo",
	"request_type", "count_only",
}

// Param is a named, described search parameter.
type Param struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Catalog maps parameter names to human-readable descriptions. Read-only after construction.
type Catalog struct {
	descriptions map[string]string
}

// Source tells where a catalog was built from.
type Source string

const (
	// SourceSchema means parameters came from the OpenAPI schema.
	SourceSchema Source = "schema"
	// SourceManual means the schema had no search parameters.
	SourceManual Source = "manual"
	// SourceDefault means the schema could not be read.
	SourceDefault Source = "default"
)

// NewCatalog builds a catalog from params and applies Overrides.
func NewCatalog(params []Param) Catalog {
	desc := make(map[string]string, len(params)+len(Overrides))
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		if _, seen := desc[p.Name]; seen {
			continue
		}
		d := strings.TrimSpace(strings.ReplaceAll(p.Description, "Filter by ", ""))
		if d == "" {
			d = "Parameter for " + p.Name
		}
		desc[p.Name] = d
	}
	for name, d := range Overrides {
		desc[name] = d
	}
	return Catalog{descriptions: desc}
}

// DefaultCatalog is the catalog used when no schema is available.
func DefaultCatalog() Catalog {
	params := make([]Param, len(defaultNames))
	for i, n := range defaultNames {
		params[i] = Param{Name: n, Description: "Default description for " + n}
	}
	return NewCatalog(params)
}

// ManualCatalog is the catalog used when the schema defines no search parameters.
func ManualCatalog() Catalog {
	return NewCatalog(manualParams)
}

// Allowed returns the allow-list. "q" is always part of it.
func (c Catalog) Allowed() ParamSet {
	s := make(ParamSet, len(c.descriptions)+1)
	for n := range c.descriptions {
		s[n] = struct{}{}
	}
	s[ParamQuery] = struct{}{}
	return s
}

// Params returns all parameters sorted by name.
func (c Catalog) Params() []Param {
	out := make([]Param, 0, len(c.descriptions))
	for n, d := range c.descriptions {
		out = append(out, Param{Name: n, Description: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of parameters.
func (c Catalog) Len() int { return len(c.descriptions) }

type openAPIDoc struct {
	Paths map[string]struct {
		Get struct {
			Parameters []Param `json:"parameters" yaml:"parameters"`
		} `json:"get" yaml:"get"`
	} `json:"paths" yaml:"paths"`
}

// ErrSchemaUnavailable signals an unreadable or unparsable OpenAPI schema.
var ErrSchemaUnavailable = errors.New("openapi schema unavailable")

// LoadCatalog builds the catalog from an OpenAPI schema file (JSON or YAML).
// It never leaves the caller without a catalog: on error it returns
// DefaultCatalog together with an error wrapping ErrSchemaUnavailable.
func LoadCatalog(path string) (Catalog, Source, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), SourceDefault, fmt.Errorf("%w: read %s: %w", ErrSchemaUnavailable, path, err)
	}
	doc, err := parseSchema(data)
	if err != nil {
		return DefaultCatalog(), SourceDefault, fmt.Errorf("%w: parse %s: %w", ErrSchemaUnavailable, path, err)
	}
	params := doc.Paths[SearchPath].Get.Parameters
	if len(params) == 0 {
		return ManualCatalog(), SourceManual, nil
	}
	return NewCatalog(params), SourceSchema, nil
}

// parseSchema accepts both JSON and YAML OpenAPI documents.
func parseSchema(data []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return openAPIDoc{}, fmt.Errorf("json: %w", err)
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return openAPIDoc{}, fmt.Errorf("yaml: %w", err)
	}
	return doc, nil
}
