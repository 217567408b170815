// Package review translates user decisions on suggested duplicate pairs
// into correctly-typed events, with smart-default calculation from
// learned patterns and summary statistics for reporting. It holds no
// state of its own: every operation is a pure transformation over its
// arguments. CreateSuggestionEvent and ProcessDecision append the event
// they build to the event log; SmartDefault and BuildSummary append
// nothing.
package review

import (
	"context"
	"strings"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog"
)

// Choice is the user's resolution of a suggested duplicate pair.
type Choice string

const (
	ChoiceUseLatest    Choice = "use_latest"
	ChoiceUseOriginal  Choice = "use_original"
	ChoiceNotDuplicate Choice = "not_duplicate"
)

// Candidate carries the two transaction ids and their current canonical
// descriptions: everything ProcessDecision needs to build a
// DuplicateConfirmed without re-reading the projection.
type Candidate struct {
	TransactionID1 string
	Description1   string
	TransactionID2 string
	Description2   string
}

// CreateSuggestionEvent appends a DuplicateSuggested event carrying the
// full pair and assessment, and returns it so the caller can link later
// decisions back to it via its ID.
func CreateSuggestionEvent(ctx context.Context, log eventlog.Log, candidate Candidate, assessment event.Assessment, model, promptVersion string) (*event.Event, error) {
	payload := &event.DuplicateSuggestedPayload{
		TransactionID1: candidate.TransactionID1,
		TransactionID2: candidate.TransactionID2,
		Confidence:     assessment.Confidence,
		Reasoning:      assessment.Reasoning,
		Model:          model,
		PromptVersion:  promptVersion,
		Assessment:     assessment,
	}
	evt, err := event.New(event.AggregateDuplicate, candidate.TransactionID1+":"+candidate.TransactionID2, payload)
	if err != nil {
		return nil, err
	}
	if err := log.Append(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// ProcessDecision turns choice into a DuplicateConfirmed or
// DuplicateRejected event, appends it, and returns it. llm_was_correct is
// derived by comparing the assessment's verdict to whether the user
// agreed a duplicate existed at all.
func ProcessDecision(ctx context.Context, log eventlog.Log, choice Choice, rationale *string, candidate Candidate, assessment event.Assessment, suggestionEventID string) (*event.Event, error) {
	userSaysDuplicate := choice != ChoiceNotDuplicate
	llmWasCorrect := assessment.IsDuplicate == userSaysDuplicate

	switch choice {
	case ChoiceUseLatest, ChoiceUseOriginal:
		canonical := candidate.Description1
		if choice == ChoiceUseLatest {
			canonical = candidate.Description2
		}
		payload := &event.DuplicateConfirmedPayload{
			SuggestionEventID:      suggestionEventID,
			PrimaryTransactionID:   candidate.TransactionID1,
			DuplicateTransactionID: candidate.TransactionID2,
			CanonicalDescription:   canonical,
			UserRationale:          rationale,
			LLMWasCorrect:          llmWasCorrect,
		}
		evt, err := event.New(event.AggregateDuplicate, candidate.TransactionID1+":"+candidate.TransactionID2, payload)
		if err != nil {
			return nil, err
		}
		if err := log.Append(ctx, evt); err != nil {
			return nil, err
		}
		return evt, nil

	default: // ChoiceNotDuplicate
		payload := &event.DuplicateRejectedPayload{
			SuggestionEventID: suggestionEventID,
			TransactionID1:    candidate.TransactionID1,
			TransactionID2:    candidate.TransactionID2,
			UserRationale:     rationale,
			LLMWasCorrect:     llmWasCorrect,
		}
		evt, err := event.New(event.AggregateDuplicate, candidate.TransactionID1+":"+candidate.TransactionID2, payload)
		if err != nil {
			return nil, err
		}
		if err := log.Append(ctx, evt); err != nil {
			return nil, err
		}
		return evt, nil
	}
}

// SmartDefault inspects learnedPatterns (the strings carried by
// PromptUpdated events) for phrases indicating a user preference, and
// returns a default choice plus a hint explaining why. Plain substring
// checks, not NLP.
func SmartDefault(learnedPatterns []string) (Choice, string) {
	for _, pattern := range learnedPatterns {
		lower := strings.ToLower(pattern)
		// Patterns read like "User prefers latest description 87% of the
		// time", so match "prefer"/"prefers" plus the preferred side.
		if !strings.Contains(lower, "prefer") {
			continue
		}
		if strings.Contains(lower, "latest") {
			return ChoiceUseLatest, pattern
		}
		if strings.Contains(lower, "original") {
			return ChoiceUseOriginal, pattern
		}
	}
	return ChoiceUseLatest, "no strong preference detected in learned patterns; defaulting to latest description"
}

// Summary reports aggregate statistics over a batch of scanned matches
// and the feedback collected on them.
type Summary struct {
	TotalMatches        int
	PredictedDuplicate  int
	PredictedDistinct   int
	Confirmed           int
	Rejected            int
	FeedbackVolume      int
}

// BuildSummary counts total matches, the oracle's predicted duplicate vs
// non-duplicate split, and how many of those matches were subsequently
// confirmed or rejected by the user.
func BuildSummary(matches []event.Assessment, confirmed, rejected int) Summary {
	summary := Summary{
		TotalMatches:   len(matches),
		Confirmed:      confirmed,
		Rejected:       rejected,
		FeedbackVolume: confirmed + rejected,
	}
	for _, m := range matches {
		if m.IsDuplicate {
			summary.PredictedDuplicate++
		} else {
			summary.PredictedDistinct++
		}
	}
	return summary
}
