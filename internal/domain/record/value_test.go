package record

import (
	"encoding/json"
	"strings"
	"testing"
)

func decode(t *testing.T, s string) Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"plain string", "  Around the World  ", "Around the World"},
		{"embedded wrapper", `{"@value": "X"}`, "X"},
		{"embedded wrapper single quotes", `{'@value': ' X '}`, "X"},
		{"embedded wrapper empty value", `{"@value": "  "}`, "default"},
		{"embedded wrapper without value", `{"@language": "heb", "@value2": 1}`, "default"},
		{"malformed embedded", `@value is not json`, "@value is not json"},
		{"decoded wrapper", map[string]any{"@value": " Y "}, "Y"},
		{"sequence of wrappers", []any{map[string]any{"@value": "first"}, map[string]any{"@value": "second"}}, "first"},
		{"sequence of embedded strings", []any{`{'@value': 'Z'}`}, "Z"},
		{"sequence of scalars", []any{"a", "b"}, "a"},
		{"empty sequence", []any{}, "default"},
		{"nil", nil, "default"},
		{"blank", "   ", "default"},
		{"number", json.Number("990032394200205171"), "990032394200205171"},
		{"float", float64(1920), "1920"},
		{"bool", true, "true"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := Record{"k": tc.raw}
			if got := Extract(rec, "k", "default"); got != tc.want {
				t.Errorf("Extract = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtract_MissingKey(t *testing.T) {
	if got := Extract(Record{}, "absent", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := Extract(nil, "absent", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for nil record, got %q", got)
	}
}

func TestExtract_WrapperRoundTrip(t *testing.T) {
	embedded := Record{"k": `{"@value": "X"}`}
	sequence := Record{"k": []any{map[string]any{"@value": "X"}}}

	if got := Extract(embedded, "k", ""); got != "X" {
		t.Errorf("embedded: got %q", got)
	}
	if got := Extract(sequence, "k", ""); got != "X" {
		t.Errorf("sequence: got %q", got)
	}
}

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		raw  any
		want Kind
	}{
		{nil, KindMissing},
		{"x", KindScalar},
		{`{"@value":"x"}`, KindWrapped},
		{map[string]any{"@value": "x"}, KindWrapped},
		{[]any{"x"}, KindSequence},
		{json.Number("1"), KindScalar},
	}
	for _, tc := range tests {
		if got := Parse(tc.raw).Kind(); got != tc.want {
			t.Errorf("Parse(%v).Kind() = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestRecord_Accessors(t *testing.T) {
	rec := decode(t, `{
		"@id": "https://www.nli.org.il/en/books/NNL_ALEPH990020376560205171",
		"http://purl.org/dc/elements/1.1/recordid": [{"@value": "990020376560205171"}],
		"http://purl.org/dc/elements/1.1/title": [{"@value": "Around the World"}],
		"http://purl.org/dc/elements/1.1/creator": [{"@value": "Jules Verne"}],
		"http://purl.org/dc/elements/1.1/thumbnail": [{"@value": "https://example.org/t.jpg"}]
	}`)

	if got := rec.ID(); got != "990020376560205171" {
		t.Errorf("ID = %q", got)
	}
	if got := rec.PublicID(); !strings.HasSuffix(got, "NNL_ALEPH990020376560205171") {
		t.Errorf("PublicID = %q", got)
	}
	if got := rec.Title(); got != "Around the World" {
		t.Errorf("Title = %q", got)
	}
	if got := rec.Creator(); got != "Jules Verne" {
		t.Errorf("Creator = %q", got)
	}
	if got := rec.Thumbnail(); got != "https://example.org/t.jpg" {
		t.Errorf("Thumbnail = %q", got)
	}
}

func TestRecord_NumericIDKeepsPrecision(t *testing.T) {
	rec := decode(t, `{"http://purl.org/dc/elements/1.1/recordid": 990032394200205171}`)
	if got := rec.ID(); got != "990032394200205171" {
		t.Errorf("ID = %q, want literal digits", got)
	}
}

func TestText(t *testing.T) {
	if got := Text(" a "); got != "a" {
		t.Errorf("Text = %q", got)
	}
	if got := Text(nil); got != "" {
		t.Errorf("Text(nil) = %q", got)
	}
	if got := Text([]any{"a", json.Number("1")}); got != `["a",1]` {
		t.Errorf("Text(slice) = %q", got)
	}
}
