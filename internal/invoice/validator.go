// Package invoice turns loosely structured invoice data into validated
// expense records. Extraction talks to the OCR and LLM collaborators; the
// validator is a total function that resolves every ambiguity with an
// explicit default policy instead of failing.
package invoice

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// invoiceDateLayout is the strict day/month/year format invoices carry.
const invoiceDateLayout = "02/01/2006"

// AmountParser extracts a numeric value from monetary text. Satisfied by
// currency.Normalizer.
type AmountParser interface {
	ParseAmount(text string) decimal.Decimal
}

// Validator fills missing or invalid invoice fields with policy defaults.
type Validator struct {
	parser AmountParser
	// guessThreshold: unlabeled amounts above it are assumed COP, below USD.
	// The two currencies differ by roughly three orders of magnitude, so the
	// exact cutoff is heuristic policy, not law.
	guessThreshold decimal.Decimal
	now            func() time.Time
	log            zerolog.Logger
}

// NewValidator creates a Validator with the given currency-guess threshold.
func NewValidator(parser AmountParser, guessThreshold decimal.Decimal, log zerolog.Logger) *Validator {
	return &Validator{
		parser:         parser,
		guessThreshold: guessThreshold,
		now:            time.Now,
		log:            log,
	}
}

// Validate converts a raw extracted field set into a fully populated record.
// It is total: every input, however malformed, produces a usable record.
// Expected keys are "fecha", "detalle", "monto", "moneda", "categoria".
func (v *Validator) Validate(raw map[string]interface{}) domain.ExpenseRecord {
	record := domain.ExpenseRecord{
		Date:        v.validDate(raw["fecha"]),
		Description: v.validDescription(raw["detalle"]),
		Category:    v.validCategory(raw["categoria"]),
	}

	amount := v.validAmount(raw["monto"])
	currency := v.validCurrency(raw["moneda"], amount)

	record.SourceCurrency = currency
	if currency == domain.CurrencyUSD {
		record.AmountUSD = amount
	} else {
		record.AmountCOP = amount
	}

	return record
}

func (v *Validator) validDate(field interface{}) time.Time {
	s, ok := field.(string)
	if !ok {
		return v.now()
	}
	parsed, err := time.Parse(invoiceDateLayout, strings.TrimSpace(s))
	if err != nil {
		v.log.Debug().Str("fecha", s).Msg("Invoice date unparseable, using capture date")
		return v.now()
	}
	return parsed
}

func (v *Validator) validDescription(field interface{}) string {
	s, ok := field.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return domain.DefaultDescription
	}
	return strings.TrimSpace(s)
}

func (v *Validator) validAmount(field interface{}) decimal.Decimal {
	switch val := field.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case string:
		// Permissive coercion: strip symbols and separators; zero on failure.
		return v.parser.ParseAmount(val)
	default:
		return decimal.Zero
	}
}

func (v *Validator) validCurrency(field interface{}, amount decimal.Decimal) domain.Currency {
	if s, ok := field.(string); ok {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case string(domain.CurrencyCOP):
			return domain.CurrencyCOP
		case string(domain.CurrencyUSD):
			return domain.CurrencyUSD
		}
	}
	// Magnitude heuristic: large amounts are almost certainly pesos.
	if amount.GreaterThan(v.guessThreshold) {
		return domain.CurrencyCOP
	}
	return domain.CurrencyUSD
}

func (v *Validator) validCategory(field interface{}) string {
	s, ok := field.(string)
	if !ok {
		return domain.CategoryFallback
	}
	return domain.NormalizeCategory(s)
}
