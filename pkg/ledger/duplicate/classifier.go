package duplicate

import (
	"fmt"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
)

// minTrainingExamples is the floor below which Train fails with
// ErrInsufficientTrainingData.
const minTrainingExamples = 10

// TrainingExample is one labeled pair reconstructed from a
// DuplicateConfirmed or DuplicateRejected event plus the projection
// records it referenced.
type TrainingExample struct {
	Pair  Pair
	Label bool
}

// TrainingMetrics reports the outcome of a Classifier.Train call.
type TrainingMetrics struct {
	TrainAccuracy float64
	ValAccuracy   float64
	Precision     float64
	Recall        float64
	TrainExamples int
	ValExamples   int
}

// Classifier is the assessment capability the duplicate pipeline treats
// the ML classifier and the LLM-backed oracle as two interchangeable
// implementations of.
type Classifier interface {
	// Train fits the classifier on examples, holding back validationSplit
	// as a validation set. Fails with ErrInsufficientTrainingData if
	// len(examples) < minTrainingExamples.
	Train(examples []TrainingExample, validationSplit float64) (TrainingMetrics, error)

	// Predict assesses pair, returning ErrUntrainedModel if Train has not
	// succeeded yet.
	Predict(pair Pair) (event.Assessment, error)
}

// HeuristicClassifier is a deterministic, explainable Classifier built
// directly on FeatureExtractor: a fixed weighting of the 8 similarity
// features, thresholded at a value fit from the training labels. It
// exists so the pipeline is usable end-to-end without an external ML or
// LLM oracle; an LLM-backed oracle remains an external collaborator
// behind this same interface.
type HeuristicClassifier struct {
	extractor *FeatureExtractor
	weights   featureWeights
	threshold float64
	trained   bool
}

// NewHeuristicClassifier returns an untrained HeuristicClassifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{extractor: NewFeatureExtractor(), weights: defaultWeights}
}

// NewDefaultClassifier returns a HeuristicClassifier preconfigured with
// the default weights and a 0.5 threshold, usable without training. It
// stands in for the external oracle where none is wired, e.g. a scan
// run before any labeled pairs exist.
func NewDefaultClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{
		extractor: NewFeatureExtractor(),
		weights:   defaultWeights,
		threshold: 0.5,
		trained:   true,
	}
}

type featureWeights struct {
	descriptionOverlap    float64
	levenshteinRatio      float64
	tokenOverlapRatio     float64
	amountExactMatch      float64
	dateProximity         float64
	sameAccount           float64
	descriptionLengthDiff float64
	commonPrefixRatio     float64
}

// defaultWeights emphasizes the three strongest duplicate signals
// (description overlap, edit-distance similarity, exact amount match)
// while still letting account/date/structural features break ties.
var defaultWeights = featureWeights{
	descriptionOverlap:    0.25,
	levenshteinRatio:      0.20,
	tokenOverlapRatio:     0.15,
	amountExactMatch:      0.15,
	dateProximity:         0.10,
	sameAccount:           0.05,
	descriptionLengthDiff: 0.05,
	commonPrefixRatio:     0.05,
}

// score combines Features into a single similarity value in [0, 1] using
// w, converting the two raw (non-similarity) features, date gap and
// length difference, into similarity terms first.
func score(f Features, w featureWeights) float64 {
	amountTerm := 0.0
	if f.AmountExactMatch {
		amountTerm = 1
	}
	accountTerm := 0.0
	if f.SameAccount {
		accountTerm = 1
	}
	dateTerm := 1 / (1 + float64(f.DateDifferenceDays))
	lengthTerm := 1 - clamp01(f.DescriptionLengthDiff)

	return w.descriptionOverlap*clamp01(f.DescriptionOverlap) +
		w.levenshteinRatio*clamp01(f.LevenshteinRatio) +
		w.tokenOverlapRatio*clamp01(f.TokenOverlapRatio) +
		w.amountExactMatch*amountTerm +
		w.dateProximity*dateTerm +
		w.sameAccount*accountTerm +
		w.descriptionLengthDiff*lengthTerm +
		w.commonPrefixRatio*clamp01(f.CommonPrefixRatio)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Train fits threshold as the midpoint between the mean score of
// positive and negative training examples, then reports accuracy on both
// the training split and the held-out validation split.
func (c *HeuristicClassifier) Train(examples []TrainingExample, validationSplit float64) (TrainingMetrics, error) {
	if len(examples) < minTrainingExamples {
		return TrainingMetrics{}, ledgererr.ErrInsufficientTrainingData
	}

	splitIdx := len(examples) - int(float64(len(examples))*validationSplit)
	if splitIdx < 1 {
		splitIdx = 1
	}
	if splitIdx > len(examples) {
		splitIdx = len(examples)
	}
	train := examples[:splitIdx]
	val := examples[splitIdx:]

	var posSum, posCount, negSum, negCount float64
	for _, ex := range train {
		s := score(c.extractor.Extract(ex.Pair.T1, ex.Pair.T2), c.weights)
		if ex.Label {
			posSum += s
			posCount++
		} else {
			negSum += s
			negCount++
		}
	}

	threshold := 0.5
	switch {
	case posCount > 0 && negCount > 0:
		threshold = (posSum/posCount + negSum/negCount) / 2
	case posCount > 0:
		threshold = posSum / posCount / 2
	case negCount > 0:
		threshold = (negSum/negCount + 1) / 2
	}

	c.threshold = threshold
	c.trained = true

	trainAcc, trainPrecision, trainRecall := c.evaluate(train)
	valAcc, _, _ := c.evaluate(val)

	return TrainingMetrics{
		TrainAccuracy: trainAcc,
		ValAccuracy:   valAcc,
		Precision:     trainPrecision,
		Recall:        trainRecall,
		TrainExamples: len(train),
		ValExamples:   len(val),
	}, nil
}

func (c *HeuristicClassifier) evaluate(examples []TrainingExample) (accuracy, precision, recall float64) {
	if len(examples) == 0 {
		return 0, 0, 0
	}
	var correct, tp, fp, fn int
	for _, ex := range examples {
		s := score(c.extractor.Extract(ex.Pair.T1, ex.Pair.T2), c.weights)
		predicted := s >= c.threshold
		if predicted == ex.Label {
			correct++
		}
		switch {
		case predicted && ex.Label:
			tp++
		case predicted && !ex.Label:
			fp++
		case !predicted && ex.Label:
			fn++
		}
	}
	accuracy = float64(correct) / float64(len(examples))
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	return accuracy, precision, recall
}

// Predict returns ErrUntrainedModel until Train has succeeded.
func (c *HeuristicClassifier) Predict(pair Pair) (event.Assessment, error) {
	if !c.trained {
		return event.Assessment{}, ledgererr.ErrUntrainedModel
	}

	features := c.extractor.Extract(pair.T1, pair.T2)
	s := score(features, c.weights)

	return event.Assessment{
		IsDuplicate: s >= c.threshold,
		Confidence:  clamp01(s),
		Reasoning:   explain(features, s, c.threshold),
		Pair:        pair.IDs(),
	}, nil
}

func explain(f Features, score, threshold float64) string {
	verdict := "not a duplicate"
	if score >= threshold {
		verdict = "a likely duplicate"
	}
	return fmt.Sprintf(
		"heuristic score %.2f (threshold %.2f) suggests %s: description overlap %.2f, edit-distance similarity %.2f, same account=%v, amount exact match=%v, %d day(s) apart",
		score, threshold, verdict, f.DescriptionOverlap, f.LevenshteinRatio, f.SameAccount, f.AmountExactMatch, f.DateDifferenceDays,
	)
}
