package duplicate

import (
	"context"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog"
)

// ResolvedPairs reads every DuplicateConfirmed and DuplicateRejected event
// from log and returns the set of transaction-id pairs they resolved, so
// candidate generation can skip pairs a user has already ruled on and an
// interrupted review session resumes cleanly.
func ResolvedPairs(ctx context.Context, log eventlog.Log) (map[pairKey]bool, error) {
	resolved := map[pairKey]bool{}

	confirmed, err := log.GetByType(ctx, event.DuplicateConfirmed)
	if err != nil {
		return nil, err
	}
	for _, evt := range confirmed {
		p, ok := evt.Payload.(*event.DuplicateConfirmedPayload)
		if !ok {
			continue
		}
		resolved[newPairKey(p.PrimaryTransactionID, p.DuplicateTransactionID)] = true
	}

	rejected, err := log.GetByType(ctx, event.DuplicateRejected)
	if err != nil {
		return nil, err
	}
	for _, evt := range rejected {
		p, ok := evt.Payload.(*event.DuplicateRejectedPayload)
		if !ok {
			continue
		}
		resolved[newPairKey(p.TransactionID1, p.TransactionID2)] = true
	}

	return resolved, nil
}

// FilterResolved drops every pair already present in resolved.
func FilterResolved(pairs []Pair, resolved map[pairKey]bool) []Pair {
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if resolved[p.Key()] {
			continue
		}
		out = append(out, p)
	}
	return out
}
