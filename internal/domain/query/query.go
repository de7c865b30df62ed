// Package query holds structured library search requests, their sanitization
// against an allow-list, and the parameter catalog the allow-list comes from.
package query

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/biblio/internal/domain/record"
)

// ParamQuery is the mandatory main query parameter.
const ParamQuery = "q"

// DefaultQ is the sentinel "match broadly" query substituted whenever planning
// or sanitization cannot produce a valid one.
const DefaultQ = "any,contains,*"

// reserved parameters are internal routing hints and never reach the library API.
var reserved = map[string]struct{}{
	"request_type": {},
	"count_only":   {},
}

// IsReserved reports whether name is an internal-only parameter.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// StructuredQuery maps parameter names to values. After Sanitize, "q" is always
// present and well-formed.
type StructuredQuery map[string]string

// Q returns the main query value.
func (q StructuredQuery) Q() string { return q[ParamQuery] }

// Keys returns parameter names in sorted order.
func (q StructuredQuery) Keys() []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default returns a query holding only the sentinel main query.
func Default() StructuredQuery {
	return StructuredQuery{ParamQuery: DefaultQ}
}

// ParamSet is the allow-list of parameter names.
type ParamSet map[string]struct{}

// NewParamSet builds a set from names.
func NewParamSet(names ...string) ParamSet {
	s := make(ParamSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is allowed.
func (s ParamSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns allowed names in sorted order.
func (s ParamSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NormalizeQ validates the field,operator,value grammar. The value part may
// itself contain commas. Returns the parts rejoined with single commas.
func NormalizeQ(raw string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), ",", 3)
	if len(parts) != 3 {
		return "", false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return "", false
		}
	}
	return strings.Join(parts, ","), true
}

// Sanitize drops keys outside allowed, coerces values to trimmed strings and
// guarantees a well-formed "q". Pure and deterministic.
func Sanitize(candidate map[string]any, allowed ParamSet) StructuredQuery {
	out := make(StructuredQuery, len(candidate)+1)
	for k, v := range candidate {
		if !allowed.Has(k) {
			continue
		}
		out[k] = record.Text(v)
	}
	if q, ok := NormalizeQ(out[ParamQuery]); ok {
		out[ParamQuery] = q
	} else {
		out[ParamQuery] = DefaultQ
	}
	return out
}
