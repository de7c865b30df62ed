package summary

import "github.com/kailas-cloud/biblio/internal/domain"

// Reason names why a canned answer replaced the model's reply.
type Reason string

// Fallback reasons, also used as metric labels.
const (
	ReasonNoJSON      Reason = "no_json"
	ReasonParseError  Reason = "parse_error"
	ReasonUnavailable Reason = "unavailable"
	ReasonNoResults   Reason = "no_results"
)

// Supported fallback languages.
const (
	LangHebrew  = "he"
	LangEnglish = "en"
)

var fallbackTexts = map[string]map[Reason]string{
	LangHebrew: {
		ReasonNoJSON:      "מצטערים, לא נמצאנו תשובה תקינה מהספרייה הלאומית.",
		ReasonParseError:  "מצטערים, הייתה שגיאה בפענוח ה־JSON מהתגובה של ה‑AI.",
		ReasonUnavailable: "מצטערים, שירות הסיכום אינו זמין כרגע. נסו שוב מאוחר יותר.",
		ReasonNoResults:   "לא נמצאו תוצאות בספרייה הלאומית עבור השאלה.",
	},
	LangEnglish: {
		ReasonNoJSON:      "Sorry, no valid answer was received from the National Library.",
		ReasonParseError:  "Sorry, there was an error parsing the JSON in the AI response.",
		ReasonUnavailable: "Sorry, the summary service is currently unavailable. Please try again later.",
		ReasonNoResults:   "No results were found in the National Library for this question.",
	},
}

// Fallback returns the canned answer for reason in lang. Unknown languages use Hebrew.
func Fallback(lang string, reason Reason) domain.AnswerPayload {
	texts, ok := fallbackTexts[lang]
	if !ok {
		texts = fallbackTexts[LangHebrew]
	}
	return domain.AnswerPayload{ResponseText: texts[reason], RecordIDs: []string{}}
}
