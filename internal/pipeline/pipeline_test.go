package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage/internal"
)

type fakeEmbedder struct {
	vector []float64
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Model() string { return "test-embedding" }

type fakeStore struct {
	hits        []internal.SimilarEmail
	searchErr   error
	searchCalls int
	inserted    []*internal.EmailDocument
	insertErr   error
}

func (f *fakeStore) InsertEmail(doc *internal.EmailDocument) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, doc)
	return "generated-id", nil
}

func (f *fakeStore) SearchSimilar(vector []float64, numCandidates, topK int) ([]internal.SimilarEmail, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func sampleDocument() *internal.EmailDocument {
	return NewEmailDocument(internal.CanonicalRecord{
		Subject:    "Fee inquiry",
		Sender:     "alice@example.com",
		Recipients: []string{"servicing@example.com", "ops@example.com"},
		Body:       "Please confirm the fee schedule.",
		Attachments: []internal.Attachment{
			{Name: "schedule.pdf", Content: "fee table"},
		},
		ReceivedAt: time.Date(2025, 3, 24, 10, 0, 0, 0, time.UTC),
	}, internal.ClassificationResult{MainIntent: "Fee Payment"})
}

func TestBuildEmailTextFieldOrder(t *testing.T) {
	doc := sampleDocument()
	want := "Subject: Fee inquiry\n" +
		"From: alice@example.com\n" +
		"To: servicing@example.com, ops@example.com\n" +
		"Body: Please confirm the fee schedule.\n" +
		"Attachments: - schedule.pdf: fee table"
	got := BuildEmailText(*doc)
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if again := BuildEmailText(*doc); again != got {
		t.Fatal("text is not deterministic across calls")
	}
}

func TestPipelineStoresUniqueEmail(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float64{0.1, 0.2}}
	store := &fakeStore{}
	p := New(embedder, store, 0.85, 5, 3)

	doc := sampleDocument()
	if err := p.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted=%d", len(store.inserted))
	}
	if doc.Duplicate {
		t.Fatal("unique email flagged as duplicate")
	}
	if doc.EmbeddingModel != "test-embedding" {
		t.Fatalf("model=%q", doc.EmbeddingModel)
	}
	meta := doc.EmbeddingMeta
	if meta == nil || !meta.HasAttachments || meta.NumRecipients != 2 {
		t.Fatalf("metadata=%+v", meta)
	}
	if meta.TextLength != len(BuildEmailText(*doc)) {
		t.Fatalf("text length=%d", meta.TextLength)
	}
}

func TestPipelineFlagsDuplicateAboveThreshold(t *testing.T) {
	store := &fakeStore{hits: []internal.SimilarEmail{
		{ID: "abc", Subject: "Fee inquiry", Score: 0.93},
	}}
	p := New(&fakeEmbedder{vector: []float64{1}}, store, 0.85, 5, 3)

	doc := sampleDocument()
	if err := p.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if !doc.Duplicate || doc.DuplicateOfID != "abc" || doc.DuplicateScore != 0.93 {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestPipelineIgnoresScoresBelowThreshold(t *testing.T) {
	store := &fakeStore{hits: []internal.SimilarEmail{
		{ID: "abc", Score: 0.60},
	}}
	p := New(&fakeEmbedder{vector: []float64{1}}, store, 0.85, 5, 3)

	doc := sampleDocument()
	if err := p.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if doc.Duplicate || doc.DuplicateOfID != "" {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestPipelinePicksHighestScoringDuplicate(t *testing.T) {
	store := &fakeStore{hits: []internal.SimilarEmail{
		{ID: "first", Score: 0.90},
		{ID: "best", Score: 0.95},
		{ID: "third", Score: 0.88},
	}}
	p := New(&fakeEmbedder{vector: []float64{1}}, store, 0.85, 5, 3)

	doc := sampleDocument()
	if err := p.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if doc.DuplicateOfID != "best" || doc.DuplicateScore != 0.95 {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestPipelineEmbeddingFailureSkipsSearch(t *testing.T) {
	store := &fakeStore{}
	p := New(&fakeEmbedder{err: errors.New("quota exceeded")}, store, 0.85, 5, 3)

	doc := sampleDocument()
	if err := p.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if store.searchCalls != 0 {
		t.Fatalf("searchCalls=%d", store.searchCalls)
	}
	if len(store.inserted) != 1 {
		t.Fatal("record with no embedding should still persist")
	}
	if doc.Embedding != nil || doc.Duplicate {
		t.Fatalf("doc=%+v", doc)
	}
}

func TestPipelineSearchFailureStillPersists(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("store offline")}
	p := New(&fakeEmbedder{vector: []float64{1}}, store, 0.85, 5, 3)

	doc := sampleDocument()
	if err := p.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 1 || doc.Duplicate {
		t.Fatalf("inserted=%d doc=%+v", len(store.inserted), doc)
	}
}

func TestPipelinePersistFailurePropagates(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("disk full")}
	p := New(&fakeEmbedder{vector: []float64{1}}, store, 0.85, 5, 3)

	if err := p.Run(context.Background(), sampleDocument()); err == nil {
		t.Fatal("expected persist error")
	}
}
