package listener

import (
	"context"
	"fmt"
	"time"

	"triage/internal"
	"triage/internal/pipeline"
)

// MailSession is the slice of the session manager the loop drives.
type MailSession interface {
	Connect() error
	FetchUnseen() ([]uint32, error)
	Fetch(id uint32) ([]byte, error)
	MarkSeen(id uint32) error
}

// RecordNormalizer turns a raw payload into a canonical record.
type RecordNormalizer interface {
	Normalize(ctx context.Context, raw []byte) (*internal.CanonicalRecord, error)
}

// IntentClassifier never fails: remote errors degrade to the sentinel.
type IntentClassifier interface {
	Classify(ctx context.Context, rec internal.CanonicalRecord) internal.ClassificationResult
}

// RecordPipeline runs the embed → duplicate-check → persist chain.
type RecordPipeline interface {
	Run(ctx context.Context, doc *internal.EmailDocument) error
}

type state string

const (
	statePolling     state = "POLLING"
	stateFetching    state = "FETCHING"
	stateNormalizing state = "NORMALIZING"
	stateDispatching state = "DISPATCHING"
)

// Service is the ingestion loop: a single-threaded polling cycle that
// fetches unseen mail, normalizes it, and dispatches each record through
// the downstream pipeline. No failure below configuration level ever
// terminates the loop.
type Service struct {
	session    MailSession
	normalizer RecordNormalizer
	classifier IntentClassifier
	pipeline   RecordPipeline
	interval   time.Duration

	// seen is scoped to the process lifetime; a restart may reprocess
	// messages the transport already marked seen, which downstream
	// persistence tolerates.
	seen  map[uint32]struct{}
	state state
}

func NewService(session MailSession, normalizer RecordNormalizer, classifier IntentClassifier, pipe RecordPipeline, pollInterval time.Duration) *Service {
	return &Service{
		session:    session,
		normalizer: normalizer,
		classifier: classifier,
		pipeline:   pipe,
		interval:   pollInterval,
		seen:       map[uint32]struct{}{},
		state:      statePolling,
	}
}

// Run polls until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.RunCycle(ctx); err != nil {
			fmt.Printf("cycle error: %v\n", err)
			if cerr := s.session.Connect(); cerr != nil {
				fmt.Printf("reconnect failed, will retry next cycle: %v\n", cerr)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}

// RunCycle performs one POLLING → FETCHING → NORMALIZING → DISPATCHING
// pass. Messages are handled strictly in arrival order, one at a time;
// a pipeline failure for one record never blocks the records after it.
func (s *Service) RunCycle(ctx context.Context) error {
	s.state = statePolling
	ids, err := s.session.FetchUnseen()
	if err != nil {
		return fmt.Errorf("fetch unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	fmt.Printf("found %d unseen messages\n", len(ids))

	for _, id := range ids {
		if _, done := s.seen[id]; done {
			continue
		}

		s.state = stateFetching
		raw, err := s.session.Fetch(id)
		if err != nil {
			fmt.Printf("fetch %d failed: %v\n", id, err)
			continue
		}

		s.state = stateNormalizing
		record, err := s.normalizer.Normalize(ctx, raw)
		if err != nil {
			// Left unseen at the transport; eligible again next cycle.
			fmt.Printf("skipping message %d: %v\n", id, err)
			continue
		}

		// Seen marking is deferred until normalization succeeded, so a
		// crash mid-processing leaves the message eligible for reprocessing.
		if err := s.session.MarkSeen(id); err != nil {
			fmt.Printf("mark seen %d failed: %v\n", id, err)
			continue
		}
		s.seen[id] = struct{}{}

		s.state = stateDispatching
		doc := pipeline.NewEmailDocument(*record, s.classifier.Classify(ctx, *record))
		if err := s.pipeline.Run(ctx, doc); err != nil {
			fmt.Printf("pipeline failed subject=%q: %v\n", record.Subject, err)
		}
	}

	s.state = statePolling
	return nil
}
