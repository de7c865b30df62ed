package assistant

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/biblio/internal/domain"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	"github.com/kailas-cloud/biblio/internal/domain/record"
	"github.com/kailas-cloud/biblio/internal/metrics"
	"github.com/kailas-cloud/biblio/internal/usecase/images"
	"github.com/kailas-cloud/biblio/internal/usecase/planner"
	"github.com/kailas-cloud/biblio/internal/usecase/search"
	"github.com/kailas-cloud/biblio/internal/usecase/summary"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Mocks ---

// stagedCompleter answers by pipeline stage.
type stagedCompleter struct {
	replies map[string]string

	mu      sync.Mutex
	prompts map[string]string
}

func (m *stagedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompts == nil {
		m.prompts = make(map[string]string)
	}
	m.prompts[req.Stage] = req.Prompt
	reply, ok := m.replies[req.Stage]
	if !ok {
		return domain.CompletionResult{}, errors.New("unexpected stage " + req.Stage)
	}
	return domain.CompletionResult{Text: reply}, nil
}

type mockSearcher struct {
	sets map[string]domain.ResultSet

	mu   sync.Mutex
	seen []query.StructuredQuery
}

func (m *mockSearcher) Search(_ context.Context, q query.StructuredQuery) (domain.ResultSet, error) {
	m.mu.Lock()
	m.seen = append(m.seen, q)
	m.mu.Unlock()
	if rs, ok := m.sets[q.Q()]; ok {
		return rs, nil
	}
	return domain.EmptyResultSet(), nil
}

type mockFetcher struct {
	manifests map[string]domain.Manifest

	mu    sync.Mutex
	calls []string
}

func (m *mockFetcher) Manifest(_ context.Context, id string) (domain.Manifest, error) {
	m.mu.Lock()
	m.calls = append(m.calls, id)
	m.mu.Unlock()
	if man, ok := m.manifests[id]; ok {
		return man, nil
	}
	return domain.Manifest{}, domain.ErrNotFound
}

func manifestOf(url string) domain.Manifest {
	var img domain.ManifestImage
	img.Resource.ID = url
	return domain.Manifest{Sequences: []domain.ManifestSequence{{
		Canvases: []domain.ManifestCanvas{{Images: []domain.ManifestImage{img}}},
	}}}
}

func newPipeline(llm *stagedCompleter, searcher *mockSearcher, fetcher *mockFetcher) *Service {
	catalog := query.NewCatalog([]query.Param{
		{Name: "q", Description: "main query"},
		{Name: "materialType", Description: "kind of item"},
	})
	return New(
		planner.New(llm, catalog, planner.Options{Temperature: 0.1}),
		search.New(searcher, catalog.Allowed(), search.Options{}),
		images.New(fetcher, images.Options{}),
		summary.New(llm, summary.Options{}),
	)
}

// --- Tests ---

func TestAsk_BooksByX(t *testing.T) {
	llm := &stagedCompleter{replies: map[string]string{
		"planner": `[{"q": "creator,exact,X", "materialType": "books"}]`,
		"summary": `Answer: {"response_text": "<p>Two books by <a href=\"https://nli/2\">X</a></p>", "record_ids": ["2"]}`,
	}}
	searcher := &mockSearcher{sets: map[string]domain.ResultSet{
		"creator,exact,X": {
			TotalResults: 2,
			Items: []record.Record{
				{
					record.FieldID:        "https://nli/1",
					record.FieldRecordID:  "1",
					record.FieldTitle:     "First book",
					record.FieldThumbnail: "https://img/1.jpg",
				},
				{
					record.FieldID:       "https://nli/2",
					record.FieldRecordID: []any{map[string]any{"@value": "2"}},
					record.FieldTitle:    "Second book",
				},
			},
		},
	}}
	fetcher := &mockFetcher{manifests: map[string]domain.Manifest{"2": manifestOf("https://iiif/2/full.jpg")}}

	got, err := newPipeline(llm, searcher, fetcher).Ask(context.Background(), "books by X")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if len(got.Queries) != 1 || got.Queries[0].Q() != "creator,exact,X" || got.Queries[0]["materialType"] != "books" {
		t.Fatalf("unexpected plan %v", got.Queries)
	}
	if len(searcher.seen) != 1 || searcher.seen[0]["materialType"] != "books" {
		t.Fatalf("unexpected searches %v", searcher.seen)
	}
	if len(got.Results) != 1 || len(got.Results[0].Items) != 2 {
		t.Fatalf("unexpected results %+v", got.Results)
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "2" {
		t.Fatalf("resolver must run for exactly the second item, got %v", fetcher.calls)
	}
	if len(got.Images) != 1 || got.Images[0].RecordID != "2" || got.Images[0].ThumbnailURL != "https://iiif/2/full.jpg" {
		t.Fatalf("unexpected images %+v", got.Images)
	}

	prompt := llm.prompts["summary"]
	for _, want := range []string{"First book", "Second book", "https://iiif/2/full.jpg", "Question: books by X"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("summary prompt missing %q", want)
		}
	}

	if got.Answer.ResponseText == "" {
		t.Fatal("expected non-empty response_text")
	}
	cited := false
	for _, id := range got.Answer.RecordIDs {
		if id == "1" || id == "2" {
			cited = true
		}
	}
	if !cited {
		t.Errorf("answer must cite one of the records, got %v", got.Answer.RecordIDs)
	}
}

func TestAsk_NoResultsSkipsSummary(t *testing.T) {
	llm := &stagedCompleter{replies: map[string]string{
		"planner": `[{"q": "title,contains,nothing"}]`,
	}}
	fetcher := &mockFetcher{}

	got, err := newPipeline(llm, &mockSearcher{}, fetcher).Ask(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, called := llm.prompts["summary"]; called {
		t.Error("summary stage must be skipped when there are no items")
	}
	if got.Answer.ResponseText != summary.Fallback(summary.LangHebrew, summary.ReasonNoResults).ResponseText {
		t.Errorf("unexpected answer %q", got.Answer.ResponseText)
	}
	if got.Images == nil || len(fetcher.calls) != 0 {
		t.Errorf("expected no image work, got images=%v calls=%v", got.Images, fetcher.calls)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	llm := &stagedCompleter{}
	_, err := newPipeline(llm, &mockSearcher{}, &mockFetcher{}).Ask(context.Background(), "  \t")
	if !errors.Is(err, domain.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if len(llm.prompts) != 0 {
		t.Error("no model call expected")
	}
}

func TestAsk_PlannerFailureStillAnswers(t *testing.T) {
	llm := &stagedCompleter{replies: map[string]string{
		"planner": "I am not sure",
		"summary": `{"response_text": "broad results", "record_ids": []}`,
	}}
	searcher := &mockSearcher{sets: map[string]domain.ResultSet{
		query.DefaultQ: {TotalResults: 1, Items: []record.Record{{record.FieldTitle: "anything"}}},
	}}

	got, err := newPipeline(llm, searcher, &mockFetcher{}).Ask(context.Background(), "???")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(got.Queries) != 1 || got.Queries[0].Q() != query.DefaultQ {
		t.Errorf("expected default query, got %v", got.Queries)
	}
	if got.Answer.ResponseText != "broad results" {
		t.Errorf("response_text = %q", got.Answer.ResponseText)
	}
}

func TestResolveImages_AggregatesSets(t *testing.T) {
	fetcher := &mockFetcher{manifests: map[string]domain.Manifest{
		"a": manifestOf("https://iiif/a.png"),
		"b": manifestOf("https://iiif/b.png"),
	}}
	svc := newPipeline(&stagedCompleter{}, &mockSearcher{}, fetcher)

	got := svc.ResolveImages(context.Background(), []domain.ResultSet{
		{Items: []record.Record{{record.FieldRecordID: "a"}}},
		domain.EmptyResultSet(),
		{Items: []record.Record{{record.FieldRecordID: "b"}, {record.FieldRecordID: "a"}}},
	})
	if len(got) != 2 {
		t.Fatalf("got %d images, want 2", len(got))
	}
	if len(fetcher.calls) != 2 {
		t.Errorf("expected 2 fetches, got %v", fetcher.calls)
	}
}
