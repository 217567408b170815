package duplicate

import (
	"math"
	"strings"

	"github.com/privateledger/ledger/pkg/ledger/projection"
)

// Features are the similarity signals computed for a candidate pair: a
// description-similarity score, an edit-distance ratio, a token overlap
// ratio, an exact-amount flag, a date gap, a same-account flag, a
// description-length difference, and a common-prefix ratio. The
// description-similarity score is a character-trigram Jaccard index,
// which is well-defined pairwise and needs no corpus-wide document
// frequencies.
type Features struct {
	DescriptionOverlap   float64
	LevenshteinRatio     float64
	TokenOverlapRatio    float64
	AmountExactMatch     bool
	DateDifferenceDays   int
	SameAccount          bool
	DescriptionLengthDiff float64
	CommonPrefixRatio    float64
}

// FeatureExtractor computes Features for a candidate pair. It holds no
// state; it exists as a type so an external Classifier can depend on the
// extraction logic without depending on HeuristicClassifier.
type FeatureExtractor struct{}

// NewFeatureExtractor returns a FeatureExtractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract computes the 8 features for the pair (t1, t2).
func (FeatureExtractor) Extract(t1, t2 *projection.TransactionRecord) Features {
	d1 := strings.ToUpper(strings.TrimSpace(t1.CanonicalDescription))
	d2 := strings.ToUpper(strings.TrimSpace(t2.CanonicalDescription))

	return Features{
		DescriptionOverlap:    ngramJaccard(d1, d2, 3),
		LevenshteinRatio:      levenshteinRatio(d1, d2),
		TokenOverlapRatio:     tokenOverlapRatio(d1, d2),
		AmountExactMatch:      t1.Amount.Equal(t2.Amount),
		DateDifferenceDays:    dateDifferenceDays(t1.TransactionDate, t2.TransactionDate),
		SameAccount:           t1.AccountID == t2.AccountID,
		DescriptionLengthDiff: lengthDiffRatio(d1, d2),
		CommonPrefixRatio:     commonPrefixRatio(d1, d2),
	}
}

func dateDifferenceDays(a, b string) int {
	da, okA := parseTransactionDate(a)
	db, okB := parseTransactionDate(b)
	if !okA || !okB {
		return 0
	}
	return daysApart(da, db)
}

// ngramJaccard computes the Jaccard index of a's and b's character
// trigram sets, a cheap stand-in for TF-IDF cosine similarity over short
// bank description strings.
func ngramJaccard(a, b string, n int) float64 {
	setA := ngramSet(a, n)
	setB := ngramSet(b, n)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for g := range setA {
		if setB[g] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func ngramSet(s string, n int) map[string]bool {
	set := map[string]bool{}
	runes := []rune(s)
	if len(runes) < n {
		if len(runes) > 0 {
			set[s] = true
		}
		return set
	}
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = true
	}
	return set
}

// tokenOverlapRatio is the Jaccard index of a's and b's whitespace-split
// token sets.
func tokenOverlapRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// levenshteinRatio converts the Levenshtein edit distance into a
// similarity ratio in [0, 1]: 1 - distance/max(len(a), len(b)).
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshteinDistance(ra, rb)
	return 1 - float64(dist)/float64(maxLen)
}

func levenshteinDistance(a, b []rune) int {
	rows, cols := len(a)+1, len(b)+1
	prev := make([]int, cols)
	curr := make([]int, cols)
	for j := 0; j < cols; j++ {
		prev[j] = j
	}
	for i := 1; i < rows; i++ {
		curr[0] = i
		for j := 1; j < cols; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			deletion := prev[j] + 1
			insertion := curr[j-1] + 1
			substitution := prev[j-1] + cost
			curr[j] = min3(deletion, insertion, substitution)
		}
		prev, curr = curr, prev
	}
	return prev[cols-1]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// lengthDiffRatio normalizes the absolute description-length difference
// by the longer string's length, so identical-length strings score 0 and
// wildly different lengths approach 1.
func lengthDiffRatio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 0
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(maxLen)
}

// commonPrefixRatio normalizes the shared-prefix length by the average of
// the two string lengths.
func commonPrefixRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	shared := 0
	for shared < n && ra[shared] == rb[shared] {
		shared++
	}
	avgLen := float64(len(ra)+len(rb)) / 2
	if avgLen == 0 {
		return 0
	}
	return math.Min(1, float64(shared)/avgLen)
}
