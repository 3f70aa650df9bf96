package pipeline

import (
	"context"
	"fmt"
	"strings"

	"triage/internal"
)

// Embedder provides fixed-length vectors for formatted email text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// DocumentStore is the slice of the document store the pipeline needs:
// append-only inserts and nearest-neighbour search over stored embeddings.
type DocumentStore interface {
	InsertEmail(doc *internal.EmailDocument) (string, error)
	SearchSimilar(vector []float64, numCandidates, topK int) ([]internal.SimilarEmail, error)
}

// Stage is one step of the post-processing chain. Stages mutate the
// document in place; returning an error stops the chain for this record.
type Stage func(ctx context.Context, doc *internal.EmailDocument) error

// Pipeline runs embed, duplicate-check and persist in that order. The
// ordering is a correctness property: the duplicate flag must reflect the
// embedding computed in the same run, never a stale one.
type Pipeline struct {
	stages []Stage
}

func New(embedder Embedder, store DocumentStore, threshold float64, numCandidates, topK int) *Pipeline {
	return &Pipeline{
		stages: []Stage{
			embedStage(embedder),
			duplicateStage(store, threshold, numCandidates, topK),
			persistStage(store),
		},
	}
}

func (p *Pipeline) Run(ctx context.Context, doc *internal.EmailDocument) error {
	for _, stage := range p.stages {
		if err := stage(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// NewEmailDocument joins a canonical record with its classification into
// the document shape the pipeline stages operate on.
func NewEmailDocument(rec internal.CanonicalRecord, cls internal.ClassificationResult) *internal.EmailDocument {
	return &internal.EmailDocument{
		Subject:        rec.Subject,
		Sender:         rec.Sender,
		Recipients:     rec.Recipients,
		Body:           rec.Body,
		Attachments:    rec.Attachments,
		MainIntent:     cls.MainIntent,
		RequestDetails: cls.RequestDetails,
		ReceivedAt:     rec.ReceivedAt,
	}
}

// BuildEmailText renders the document in the fixed field order the
// embedding is computed over. Labels and ordering are part of the
// stored-embedding contract: changing them invalidates similarity scores
// against previously stored vectors.
func BuildEmailText(doc internal.EmailDocument) string {
	attachmentLines := make([]string, 0, len(doc.Attachments))
	for _, att := range doc.Attachments {
		attachmentLines = append(attachmentLines, fmt.Sprintf("- %s: %s", att.Name, att.Content))
	}

	text := fmt.Sprintf("Subject: %s\nFrom: %s\nTo: %s\nBody: %s\nAttachments: %s",
		doc.Subject,
		doc.Sender,
		strings.Join(doc.Recipients, ", "),
		doc.Body,
		strings.Join(attachmentLines, "\n"))
	return strings.TrimSpace(text)
}

func embedStage(embedder Embedder) Stage {
	return func(ctx context.Context, doc *internal.EmailDocument) error {
		text := BuildEmailText(*doc)
		vector, err := embedder.Embed(ctx, text)
		if err != nil {
			// No embedding means duplicate detection is skipped, but the
			// record still reaches persistence.
			fmt.Printf("warning: embedding failed subject=%q: %v\n", doc.Subject, err)
			doc.Embedding = nil
			return nil
		}
		doc.Embedding = vector
		doc.EmbeddingModel = embedder.Model()
		doc.EmbeddingMeta = &internal.EmbeddingMeta{
			TextLength:     len(text),
			HasAttachments: len(doc.Attachments) > 0,
			NumRecipients:  len(doc.Recipients),
		}
		return nil
	}
}

func duplicateStage(store DocumentStore, threshold float64, numCandidates, topK int) Stage {
	return func(ctx context.Context, doc *internal.EmailDocument) error {
		if doc.Embedding == nil {
			return nil
		}
		candidates, err := store.SearchSimilar(doc.Embedding, numCandidates, topK)
		if err != nil {
			// The record still carries its content and classification, so
			// persist it unflagged rather than dropping it.
			fmt.Printf("warning: duplicate search failed subject=%q: %v\n", doc.Subject, err)
			return nil
		}
		for _, cand := range candidates {
			// Highest exceeding score wins.
			if cand.Score > threshold && cand.Score > doc.DuplicateScore {
				doc.Duplicate = true
				doc.DuplicateOfID = cand.ID
				doc.DuplicateScore = cand.Score
			}
		}
		return nil
	}
}

func persistStage(store DocumentStore) Stage {
	return func(ctx context.Context, doc *internal.EmailDocument) error {
		id, err := store.InsertEmail(doc)
		if err != nil {
			return fmt.Errorf("persist email: %w", err)
		}
		fmt.Printf("stored email id=%s intent=%q duplicate=%t\n", id, doc.MainIntent, doc.Duplicate)
		return nil
	}
}
