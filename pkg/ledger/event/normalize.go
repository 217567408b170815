package event

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

var upper = cases.Upper(language.Und)

// NormalizeDescription folds a raw bank description into the canonical
// form used for content-addressed identity: full-width punctuation is
// folded to its narrow equivalent, case is uppercased, and internal
// whitespace runs collapse to a single space. This closes the "naive
// hash splits one transaction into many" failure mode for
// encoding/casing variants without touching genuinely distinct text,
// which remains the job of the description-observed flow.
func NormalizeDescription(raw string) string {
	folded := width.Fold.String(raw)
	folded = upper.String(folded)
	return strings.Join(strings.Fields(folded), " ")
}
