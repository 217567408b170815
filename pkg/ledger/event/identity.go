package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// idHexLength is the number of hex characters of the SHA-256 digest kept
// as the transaction ID: 16 hex chars = 64 bits, enough that 8-character
// prefixes stay unambiguous for user lookup while the full ID remains
// short enough to display in a CLI table.
const idHexLength = 16

// ComputeTransactionID derives the content-addressed identity of a
// transaction from its defining attributes: the same bank row ingested
// twice yields the same ID; the same underlying transaction with an
// altered description yields a different one, which the caller is
// expected to resolve via a TransactionDescriptionObserved event.
func ComputeTransactionID(sourceAccount, date string, amount decimal.Decimal, description string) string {
	normalized := NormalizeDescription(description)
	key := fmt.Sprintf("%s|%s|%s|%s", sourceAccount, date, amount.String(), normalized)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:idHexLength]
}
