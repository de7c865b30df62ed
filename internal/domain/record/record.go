// Package record models library search records and extracts scalar values
// from their semantically tagged fields.
package record

// Field keys consumed by the pipeline.
const (
	FieldID        = "@id"
	FieldRecordID  = "http://purl.org/dc/elements/1.1/recordid"
	FieldTitle     = "http://purl.org/dc/elements/1.1/title"
	FieldCreator   = "http://purl.org/dc/elements/1.1/creator"
	FieldThumbnail = "http://purl.org/dc/elements/1.1/thumbnail"
)

const valueMarker = "@value"

// Record is an opaque library record keyed by (possibly namespaced) field names.
// Records are never mutated by the pipeline.
type Record map[string]any

// Extract returns the normalized scalar of field key, or def when the field is
// missing or blank.
func Extract(rec Record, key, def string) string {
	if rec == nil {
		return def
	}
	return Parse(rec[key]).String(def)
}

// ID returns the record id used for manifest lookups, or "" when absent.
func (r Record) ID() string { return Extract(r, FieldRecordID, "") }

// PublicID returns the public identifier (item page URL), or "" when absent.
func (r Record) PublicID() string { return Extract(r, FieldID, "") }

// Title returns the record title, or "" when absent.
func (r Record) Title() string { return Extract(r, FieldTitle, "") }

// Creator returns the record creator, or "" when absent.
func (r Record) Creator() string { return Extract(r, FieldCreator, "") }

// Thumbnail returns the direct thumbnail reference, or "" when absent.
func (r Record) Thumbnail() string { return Extract(r, FieldThumbnail, "") }
