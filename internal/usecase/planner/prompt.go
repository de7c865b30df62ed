package planner

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/biblio/internal/domain/query"
)

// materialTypes is the closed vocabulary accepted by the materialType filter.
var materialTypes = []string{
	"books", "articles", "images", "audio", "videos",
	"maps", "journals", "manuscripts", "rareBooks",
}

// buildPrompt renders the planning instructions for one question.
func buildPrompt(catalog query.Catalog, allowed query.ParamSet, userQuery string) string {
	var b strings.Builder

	b.WriteString("You are an expert system that converts natural language questions into structured JSON parameters for a library search API.\n")
	b.WriteString("Your ONLY output MUST be a valid JSON array of objects, one object per separate search. ")
	b.WriteString("Do NOT add introductions, explanations, comments or markdown fences (such as ```json). Output the raw JSON array only.\n\n")

	b.WriteString("Work through the question step by step:\n")
	b.WriteString("1. Understand the intent: what is the user looking for (for example books by several authors on one theme).\n")
	b.WriteString("2. Map the intent to the available parameters:\n")
	for _, p := range catalog.Params() {
		if !allowed.Has(p.Name) {
			continue
		}
		fmt.Fprintf(&b, "- '%s': %s\n", p.Name, p.Description)
	}

	b.WriteString("3. Extraction rules:\n")
	b.WriteString("   * Extract every relevant parameter ('creator', 'subject', 'materialType' and so on) in addition to 'q'.\n")
	b.WriteString("   * 'q' is mandatory and uses the form 'field,operator,value'. ")
	b.WriteString("Fields: 'any', 'title', 'desc', 'creator', 'subject', 'dr_s', 'dr_e'. Operators: 'contains', 'exact'.\n")
	b.WriteString("   * Names and entities: infer full names (for example 'Bialik' becomes 'חיים נחמן ביאליק').\n")
	fmt.Fprintf(&b, "   * 'materialType' accepts ONLY: %s.\n", quoteList(materialTypes))

	b.WriteString("4. Complex questions:\n")
	b.WriteString("   * When the question names a group (for example well-known Israeli children's authors), ")
	b.WriteString("identify its members from common knowledge and create a separate query for each.\n")
	b.WriteString("   * Infer themes into 'q' or 'subject' and the kind of item into 'materialType'.\n")
	b.WriteString("5. Build the final array: every object MUST carry a correctly formatted 'q'. All values are strings.\n\n")

	b.WriteString("Example:\n")
	b.WriteString("User query: 'ספרי ילדים בנושא פנטזיה של סופרים ישראלים'\n")
	b.WriteString("AI response: [\n")
	b.WriteString(`  {"q": "subject,contains,פנטזיה", "materialType": "books", "creator": "לאה גולדברג", "subject": "ספרות ילדים"},` + "\n")
	b.WriteString(`  {"q": "subject,contains,פנטזיה", "materialType": "books", "creator": "מאיר שלו", "subject": "ספרות ילדים"}` + "\n")
	b.WriteString("]\n")

	fmt.Fprintf(&b, "User query: '%s'", userQuery)

	return b.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return strings.Join(quoted, ", ")
}
