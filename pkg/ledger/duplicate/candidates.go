// Package duplicate implements the candidate-generation, suppression,
// and assessment pipeline that finds and scores potential duplicate
// transaction pairs.
package duplicate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

// CandidateOptions tunes the sorted-sweep candidate generator.
type CandidateOptions struct {
	MaxDaysApart    int
	AmountTolerance decimal.Decimal
}

// DefaultCandidateOptions returns the standard defaults: a one-day
// window and a 0.001 amount tolerance.
func DefaultCandidateOptions() CandidateOptions {
	return CandidateOptions{
		MaxDaysApart:    1,
		AmountTolerance: decimal.NewFromFloat(0.001),
	}
}

// Pair is a candidate duplicate pair carrying both full transaction
// records, so the feature extractor and classifier never need a second
// lookup against the projection store.
type Pair struct {
	T1 *projection.TransactionRecord
	T2 *projection.TransactionRecord
}

// IDs returns the bare transaction-id pair embedded in events.
func (p Pair) IDs() event.TransactionPair {
	return event.TransactionPair{
		TransactionID1: p.T1.TransactionID,
		TransactionID2: p.T2.TransactionID,
	}
}

type pairKey struct{ a, b string }

func newPairKey(id1, id2 string) pairKey {
	if id1 > id2 {
		id1, id2 = id2, id1
	}
	return pairKey{a: id1, b: id2}
}

// Key returns p's unordered identity, used to suppress re-review of
// already-resolved pairs.
func (p Pair) Key() pairKey {
	return newPairKey(p.T1.TransactionID, p.T2.TransactionID)
}

// Candidates runs the sorted sweep over txns: sort non-duplicate records
// by (date, account_id, transaction_id), then for each t1 scan forward
// until the date window closes, skipping cross-account,
// amount-mismatched, or identical-description pairs. Identical rows are
// repeated payments, not duplicates.
func Candidates(txns []*projection.TransactionRecord, opts CandidateOptions) []Pair {
	sorted := make([]*projection.TransactionRecord, 0, len(txns))
	for _, t := range txns {
		if !t.IsDuplicate {
			sorted = append(sorted, t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TransactionDate != b.TransactionDate {
			return a.TransactionDate < b.TransactionDate
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.TransactionID < b.TransactionID
	})

	var pairs []Pair
	for i, t1 := range sorted {
		d1, ok1 := parseTransactionDate(t1.TransactionDate)
		for _, t2 := range sorted[i+1:] {
			if ok1 {
				if d2, ok2 := parseTransactionDate(t2.TransactionDate); ok2 {
					if daysApart(d1, d2) > opts.MaxDaysApart {
						break
					}
				}
			}
			if t1.AccountID != t2.AccountID {
				continue
			}
			if t1.Amount.Sub(t2.Amount).Abs().GreaterThan(opts.AmountTolerance) {
				continue
			}
			if t1.CanonicalDescription == t2.CanonicalDescription {
				continue
			}
			pairs = append(pairs, Pair{T1: t1, T2: t2})
		}
	}
	return pairs
}

func parseTransactionDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}

func daysApart(a, b time.Time) int {
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
