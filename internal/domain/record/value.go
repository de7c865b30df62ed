package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the shape a field value arrived in.
type Kind int

const (
	// KindMissing is an absent or null value.
	KindMissing Kind = iota
	// KindScalar is a plain scalar.
	KindScalar
	// KindWrapped is a single-value wrapper object carrying "@value".
	KindWrapped
	// KindSequence is a sequence of values; only the first element is used.
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindScalar:
		return "scalar"
	case KindWrapped:
		return "wrapped"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is a field value resolved once at the ingestion boundary.
type Value struct {
	kind  Kind
	text  string
	first *Value
}

// Kind returns the shape tag.
func (v Value) Kind() Kind { return v.kind }

// String returns the trimmed scalar, or def when the value is missing or blank.
func (v Value) String(def string) string {
	switch v.kind {
	case KindScalar, KindWrapped:
		if s := strings.TrimSpace(v.text); s != "" {
			return s
		}
		return def
	case KindSequence:
		if v.first == nil {
			return def
		}
		return v.first.String(def)
	default:
		return def
	}
}

// Parse classifies a raw decoded JSON value. It never fails: malformed
// embedded wrappers degrade to their literal string form.
func Parse(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Value{kind: KindMissing}
	case string:
		return parseString(t)
	case map[string]any:
		if inner, ok := t[valueMarker]; ok {
			return Value{kind: KindWrapped, text: scalarText(inner)}
		}
		return Value{kind: KindScalar, text: scalarText(t)}
	case []any:
		if len(t) == 0 {
			return Value{kind: KindSequence}
		}
		first := Parse(t[0])
		return Value{kind: KindSequence, first: &first}
	case []string:
		if len(t) == 0 {
			return Value{kind: KindSequence}
		}
		first := parseString(t[0])
		return Value{kind: KindSequence, first: &first}
	default:
		return Value{kind: KindScalar, text: scalarText(t)}
	}
}

// parseString unwraps a wrapper object serialized into a string, accepting
// single quotes as a fallback quoting style.
func parseString(s string) Value {
	if !strings.Contains(s, valueMarker) {
		return Value{kind: KindScalar, text: s}
	}
	obj, ok := decodeObject(s)
	if !ok {
		obj, ok = decodeObject(strings.ReplaceAll(s, "'", `"`))
	}
	if !ok {
		return Value{kind: KindScalar, text: s}
	}
	inner, found := obj[valueMarker]
	if !found {
		return Value{kind: KindWrapped}
	}
	return Value{kind: KindWrapped, text: scalarText(inner)}
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// scalarText renders a decoded JSON value as text. Numbers keep their literal
// form so long record ids do not turn into exponents.
func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// Text renders any decoded JSON value as trimmed text. Shared with query sanitization.
func Text(v any) string {
	return strings.TrimSpace(scalarText(v))
}
