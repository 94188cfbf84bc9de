package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency identifies one of the two currencies the ledgers operate in.
type Currency string

const (
	// CurrencyCOP is the high-magnitude local currency (Colombian pesos).
	CurrencyCOP Currency = "COP"
	// CurrencyUSD is the low-magnitude reference currency (US dollars).
	CurrencyUSD Currency = "USD"
)

// Categories is the closed set of expense categories. Anything outside this
// set is corrected to CategoryFallback before posting.
var Categories = []string{"Tech", "Workspace", "Legal", "Marketing", "Suscripciones", "Otros"}

// CategoryFallback is the catch-all category for unknown or invalid labels.
const CategoryFallback = "Otros"

// DefaultDescription is used when an expense carries no detail text.
const DefaultDescription = "Gasto no especificado"

// NormalizeCategory returns the canonical category label for s, or
// CategoryFallback when s is not a member of the closed set.
func NormalizeCategory(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(trimmed, c) {
			return c
		}
	}
	return CategoryFallback
}

// IsCategory reports whether s names a member of the closed category set.
func IsCategory(s string) bool {
	trimmed := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(trimmed, c) {
			return true
		}
	}
	return false
}

// ExpenseRecord is the canonical unit posted to both ledgers. AmountCOP and
// AmountUSD always represent the same economic value modulo the conversion
// rate effective at capture time; SourceCurrency marks which of the two was
// actually entered, the other one being derived. Once posted, a record is
// immutable.
type ExpenseRecord struct {
	Date           time.Time
	Description    string
	Category       string
	AmountCOP      decimal.Decimal
	AmountUSD      decimal.Decimal
	SourceCurrency Currency
}

// SourceAmount returns the amount in the currency the human (or invoice)
// actually specified.
func (r ExpenseRecord) SourceAmount() decimal.Decimal {
	if r.SourceCurrency == CurrencyUSD {
		return r.AmountUSD
	}
	return r.AmountCOP
}
