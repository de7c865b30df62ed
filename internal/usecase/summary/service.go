// Package summary asks the language model for a grounded answer and parses it defensively.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/logger"
	"github.com/kailas-cloud/biblio/internal/metrics"
)

const stage = "summary"

// Options tunes the summary generator.
type Options struct {
	Temperature float32
	// Language selects the fallback texts: "he" or "en".
	Language string
	Debug    bool
}

// Service produces the final AnswerPayload.
type Service struct {
	llm  Completer
	opts Options
}

// New creates a summary generator.
func New(llm Completer, opts Options) *Service {
	if opts.Language == "" {
		opts.Language = LangHebrew
	}
	return &Service{llm: llm, opts: opts}
}

// Language returns the fallback language.
func (s *Service) Language() string { return s.opts.Language }

// Summarize returns the model's answer or a localized fallback. Only an empty
// question is reported as an error.
func (s *Service) Summarize(
	ctx context.Context, userQuery string, sets []domain.ResultSet, images []domain.ImageInfo,
) (domain.AnswerPayload, error) {
	userQuery = strings.TrimSpace(userQuery)
	if userQuery == "" {
		return domain.AnswerPayload{}, domain.ErrEmptyQuestion
	}

	ctx = logger.Stage(ctx, stage)
	log := logger.FromContext(ctx)

	prompt, err := buildPrompt(userQuery, sets, images)
	if err != nil {
		return domain.AnswerPayload{}, fmt.Errorf("build summary prompt: %w", err)
	}

	res, err := s.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		Temperature: s.opts.Temperature,
		Stage:       stage,
	})
	if err != nil {
		log.Warn("summary model call failed, using fallback", zap.Error(err))
		return s.fallback(ReasonUnavailable), nil
	}

	if s.opts.Debug {
		log.Info("summary raw reply", zap.String("reply", res.Text))
	}

	answer, err := ParseAnswer(res.Text)
	if err != nil {
		reason := ReasonParseError
		if errors.Is(err, errNoJSON) {
			reason = ReasonNoJSON
		}
		log.Warn("summary reply unusable, using fallback",
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return s.fallback(reason), nil
	}
	return answer, nil
}

func (s *Service) fallback(reason Reason) domain.AnswerPayload {
	metrics.SummaryFallbacksTotal.WithLabelValues(string(reason)).Inc()
	return Fallback(s.opts.Language, reason)
}

var errNoJSON = errors.New("no JSON start token in reply")

// ParseAnswer extracts the answer object from a raw model reply: strips a
// code fence, drops prose before the first '{' or '[' and decodes the first
// JSON value. Trailing text after that value is ignored.
func ParseAnswer(raw string) (domain.AnswerPayload, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimSpace(strings.Trim(raw, "`"))
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return domain.AnswerPayload{}, errNoJSON
	}

	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return domain.AnswerPayload{}, fmt.Errorf("decode answer: %w", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return domain.AnswerPayload{}, fmt.Errorf("answer is %T, want object", v)
	}

	answer := domain.AnswerPayload{RecordIDs: []string{}}

	switch text := obj["response_text"].(type) {
	case nil:
	case string:
		answer.ResponseText = text
	default:
		return domain.AnswerPayload{}, fmt.Errorf("response_text is %T, want string", text)
	}

	switch ids := obj["record_ids"].(type) {
	case nil:
	case []any:
		for _, id := range ids {
			switch t := id.(type) {
			case string:
				answer.RecordIDs = append(answer.RecordIDs, t)
			case json.Number:
				answer.RecordIDs = append(answer.RecordIDs, t.String())
			default:
				return domain.AnswerPayload{}, fmt.Errorf("record_ids entry is %T, want string or number", t)
			}
		}
	default:
		return domain.AnswerPayload{}, fmt.Errorf("record_ids is %T, want list", ids)
	}

	return answer, nil
}
