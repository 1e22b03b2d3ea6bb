package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateUUIDWithSuffix generates a UUID prefixed with the given module name.
// This helps in identifying the type of resource associated with the UUID.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// GenerateVerificationCode returns an eight character upper-case code that
// counter-parties echo back during verification.
func GenerateVerificationCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:8])
}

// HashTxn generates a SHA-256 fingerprint of the fields a counter-party signs over.
func (t *Transaction) HashTxn() string {
	data := fmt.Sprintf("%s%s%s%s%s%s", t.ReferenceID, t.Amount.String(), t.Currency, t.OriginatorAccount, t.DestinationAccount, t.TransactionDate.UTC().Format("20060102150405"))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SumAmounts adds up the amounts of the given ledger entries of one type.
func SumAmounts(entries []LedgerEntry, entryType EntryType) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.EntryType == entryType {
			total = total.Add(e.Amount)
		}
	}
	return total
}
