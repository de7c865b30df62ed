package domain

import "github.com/kailas-cloud/biblio/internal/domain/record"

// ResultSet is the outcome of one library search. Never mutated after creation.
type ResultSet struct {
	TotalResults int             `json:"total_results"`
	Items        []record.Record `json:"items"`
}

// EmptyResultSet is the zero-result entry substituted for a failed search.
func EmptyResultSet() ResultSet {
	return ResultSet{TotalResults: 0, Items: []record.Record{}}
}

// Aggregate flattens the items of all result sets, preserving order.
func Aggregate(sets []ResultSet) []record.Record {
	n := 0
	for _, s := range sets {
		n += len(s.Items)
	}
	out := make([]record.Record, 0, n)
	for _, s := range sets {
		out = append(out, s.Items...)
	}
	return out
}

// ImageInfo associates a record with an image resolved from its manifest.
type ImageInfo struct {
	RecordID     string `json:"recordId"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// AnswerPayload is the structured natural-language answer.
type AnswerPayload struct {
	ResponseText string   `json:"response_text"`
	RecordIDs    []string `json:"record_ids"`
}
