package duplicate

import (
	"context"
	"sort"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

// Service orchestrates the duplicate detection pipeline: candidate
// generation, suppression of resolved pairs, classifier selection
// between a trained HeuristicClassifier and a caller-supplied oracle,
// and DuplicateSuggested emission.
type Service struct {
	log    eventlog.Log
	store  projection.Store
	oracle Classifier
}

// NewService returns a Service. oracle is consulted whenever fewer than
// minTrainingExamples labeled pairs exist in the event log.
func NewService(log eventlog.Log, store projection.Store, oracle Classifier) *Service {
	return &Service{log: log, store: store, oracle: oracle}
}

// Scan generates candidates from txns, filters out already-resolved
// pairs, assesses the remainder with whichever classifier the current
// training-set size selects, and appends one DuplicateSuggested event per
// assessed pair. The returned assessments are sorted by confidence,
// highest first, so an interrupted review resumes in the same order it
// was abandoned in.
func (s *Service) Scan(ctx context.Context, txns []*projection.TransactionRecord, opts CandidateOptions, model, promptVersion string) ([]event.Assessment, error) {
	pairs := Candidates(txns, opts)

	resolved, err := ResolvedPairs(ctx, s.log)
	if err != nil {
		return nil, err
	}
	pairs = FilterResolved(pairs, resolved)

	classifier, usedModel, err := s.selectClassifier(ctx)
	if err != nil {
		return nil, err
	}
	if usedModel != "" {
		model = usedModel
	}

	assessments := make([]event.Assessment, 0, len(pairs))
	for _, pair := range pairs {
		assessment, err := classifier.Predict(pair)
		if err != nil {
			return assessments, err
		}
		assessments = append(assessments, assessment)

		payload := &event.DuplicateSuggestedPayload{
			TransactionID1: pair.T1.TransactionID,
			TransactionID2: pair.T2.TransactionID,
			Confidence:     assessment.Confidence,
			Reasoning:      assessment.Reasoning,
			Model:          model,
			PromptVersion:  promptVersion,
			Assessment:     assessment,
		}
		evt, err := event.New(event.AggregateDuplicate, pair.T1.TransactionID+":"+pair.T2.TransactionID, payload)
		if err != nil {
			return assessments, err
		}
		if err := s.log.Append(ctx, evt); err != nil {
			return assessments, err
		}
	}

	sort.SliceStable(assessments, func(i, j int) bool {
		if assessments[i].Confidence != assessments[j].Confidence {
			return assessments[i].Confidence > assessments[j].Confidence
		}
		return assessments[i].Pair.TransactionID1 < assessments[j].Pair.TransactionID1
	})

	return assessments, nil
}

// selectClassifier prefers a freshly trained HeuristicClassifier when at
// least minTrainingExamples labeled pairs exist in the event log;
// otherwise it falls back to the oracle. usedModel is returned so
// callers can label the emitted events with whichever classifier
// actually produced the assessment.
func (s *Service) selectClassifier(ctx context.Context) (classifier Classifier, usedModel string, err error) {
	examples, err := s.trainingExamples(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(examples) >= minTrainingExamples {
		c := NewHeuristicClassifier()
		if _, err := c.Train(examples, 0.2); err == nil {
			return c, "heuristic-classifier", nil
		}
	}
	return s.oracle, "", nil
}

// trainingExamples reconstructs labeled pairs from DuplicateConfirmed and
// DuplicateRejected events, looking up each referenced transaction's
// current projection record. Pairs whose transactions are no longer
// present (e.g. a rebuild mid-flight) are skipped rather than failing the
// scan.
func (s *Service) trainingExamples(ctx context.Context) ([]TrainingExample, error) {
	var examples []TrainingExample

	confirmed, err := s.log.GetByType(ctx, event.DuplicateConfirmed)
	if err != nil {
		return nil, err
	}
	for _, evt := range confirmed {
		p, ok := evt.Payload.(*event.DuplicateConfirmedPayload)
		if !ok {
			continue
		}
		pair, err := s.loadPair(ctx, p.PrimaryTransactionID, p.DuplicateTransactionID)
		if err != nil {
			return nil, err
		}
		if pair != nil {
			examples = append(examples, TrainingExample{Pair: *pair, Label: true})
		}
	}

	rejected, err := s.log.GetByType(ctx, event.DuplicateRejected)
	if err != nil {
		return nil, err
	}
	for _, evt := range rejected {
		p, ok := evt.Payload.(*event.DuplicateRejectedPayload)
		if !ok {
			continue
		}
		pair, err := s.loadPair(ctx, p.TransactionID1, p.TransactionID2)
		if err != nil {
			return nil, err
		}
		if pair != nil {
			examples = append(examples, TrainingExample{Pair: *pair, Label: false})
		}
	}

	return examples, nil
}

func (s *Service) loadPair(ctx context.Context, id1, id2 string) (*Pair, error) {
	t1, err := s.store.GetTransaction(ctx, id1)
	if err != nil {
		return nil, err
	}
	t2, err := s.store.GetTransaction(ctx, id2)
	if err != nil {
		return nil, err
	}
	if t1 == nil || t2 == nil {
		return nil, nil
	}
	return &Pair{T1: t1, T2: t2}, nil
}
