package summary

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kailas-cloud/biblio/internal/domain"
)

const instructions = "You are an advanced AI assistant for the National Library of Israel. " +
	"You receive a user's question, a set of JSON search results (Context, under 'results') and items_images, " +
	"a list that associates record ids with a resolved image URL. " +
	"Deliver a precise, well-structured answer in Hebrew, or in English if the question is in English. " +
	"Analyze each relevant result, extract the pertinent items and combine them into one cohesive answer to the question. " +
	"Write complete sentences in clear, simple language and stay relevant to the question. " +
	"Mention only records that appear in the context. If nothing matches, say explicitly that no results were found. " +
	"Include images only when they are relevant: use the URL from items_images for a record with the same record id, " +
	"or, when items_images has none, an image URL present in the context. Never attach more than one image per cited record. " +
	"Render an image as an HTML <img> tag no larger than 200px wide and high, keeping its proportions, " +
	"with an 'alt' attribute describing it. Place images so they do not break the reading flow, for example at the end of the answer. " +
	"Link item pages inline using each record's '@id' (such as 'https://www.nli.org.il/en/articles/NNL_ALEPH990020376560205171'): " +
	"the link goes on the item's name, never as a bare URL. " +
	"If the user asks how many search results there are, count them from the context and answer. " +
	"The answer text must be HTML with right-to-left direction for Hebrew and left-to-right for English. " +
	"Return exactly one valid JSON object with 'response_text' (the HTML answer) and 'record_ids' " +
	"(the record ids of the items mentioned, unchanged). Example: " +
	`{"response_text": "Your answer here.", "record_ids": ["990032394200205171", "990032394210205171"]}. ` +
	"This is the only accepted format.\n"

// buildPrompt renders the grounding prompt: instructions, context, images, question.
func buildPrompt(userQuery string, sets []domain.ResultSet, images []domain.ImageInfo) (string, error) {
	if sets == nil {
		sets = []domain.ResultSet{}
	}
	if images == nil {
		images = []domain.ImageInfo{}
	}

	contextJSON, err := marshal(map[string]any{"results": sets})
	if err != nil {
		return "", err
	}
	imagesJSON, err := marshal(images)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("Context: ")
	b.WriteString(contextJSON)
	b.WriteString("\nitems_images: ")
	b.WriteString(imagesJSON)
	b.WriteString("\nQuestion: ")
	b.WriteString(userQuery)
	return b.String(), nil
}

// marshal encodes v without HTML escaping so URLs and markup stay readable to the model.
func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
