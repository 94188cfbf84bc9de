// Package currency converts and formats monetary values between the two
// supported currencies. All locale heuristics (symbols, thousands and decimal
// separators) are isolated behind ParseAmount and Format so call sites never
// touch display conventions directly.
package currency

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// rateScale is the precision used when deriving the inverse rate.
const rateScale = 12

// Rate is a directional exchange-rate pair. It is owned by the Normalizer
// and replaced wholesale on refresh, never mutated field by field.
type Rate struct {
	COPPerUSD decimal.Decimal
	USDPerCOP decimal.Decimal
}

// RateSource provides the current exchange rate from a remote provider.
type RateSource interface {
	CurrentRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error)
}

// Normalizer converts amounts between COP and USD and owns the textual
// conventions for both currencies.
type Normalizer struct {
	rate   atomic.Pointer[Rate]
	source RateSource
	log    zerolog.Logger
}

// NewNormalizer builds a Normalizer seeded with the configured default rate
// and then attempts one refresh from the remote source. A failed refresh
// keeps the default: a stale rate is preferable to a blocked capture flow.
func NewNormalizer(ctx context.Context, source RateSource, defaultCOPPerUSD decimal.Decimal, log zerolog.Logger) *Normalizer {
	n := &Normalizer{
		source: source,
		log:    log,
	}
	n.rate.Store(newRate(defaultCOPPerUSD))

	if err := n.Refresh(ctx); err != nil {
		log.Warn().Err(err).
			Str("default_cop_per_usd", defaultCOPPerUSD.String()).
			Msg("Exchange rate refresh failed, keeping default rate")
	}
	return n
}

func newRate(copPerUSD decimal.Decimal) *Rate {
	if !copPerUSD.IsPositive() {
		// A zero pair makes Convert fail closed instead of dividing by zero.
		return &Rate{}
	}
	return &Rate{
		COPPerUSD: copPerUSD,
		USDPerCOP: decimal.NewFromInt(1).DivRound(copPerUSD, rateScale),
	}
}

// Refresh fetches the current USD→COP rate and swaps the whole pair in.
// Concurrent readers observe either the old or the new pair, never a mix.
func (n *Normalizer) Refresh(ctx context.Context) error {
	if n.source == nil {
		return nil
	}
	copPerUSD, err := n.source.CurrentRate(ctx, domain.CurrencyUSD, domain.CurrencyCOP)
	if err != nil {
		return err
	}
	n.rate.Store(newRate(copPerUSD))
	n.log.Info().Str("cop_per_usd", copPerUSD.String()).Msg("Exchange rate refreshed")
	return nil
}

// CurrentRate returns the rate pair in effect.
func (n *Normalizer) CurrentRate() Rate {
	return *n.rate.Load()
}

// Convert multiplies amount by the directional rate. When no rate is
// available for the requested direction it fails closed: it returns zero and
// false so the caller can surface the condition without blocking the flow.
func (n *Normalizer) Convert(amount decimal.Decimal, from, to domain.Currency) (decimal.Decimal, bool) {
	if from == to {
		return amount, true
	}
	rate := n.rate.Load()

	switch {
	case from == domain.CurrencyUSD && to == domain.CurrencyCOP:
		if rate.COPPerUSD.IsZero() {
			return decimal.Zero, false
		}
		return amount.Mul(rate.COPPerUSD).Round(0), true
	case from == domain.CurrencyCOP && to == domain.CurrencyUSD:
		if rate.USDPerCOP.IsZero() {
			return decimal.Zero, false
		}
		return amount.Mul(rate.USDPerCOP).Round(2), true
	default:
		n.log.Error().
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Unsupported conversion direction")
		return decimal.Zero, false
	}
}

// ParseAmount extracts a numeric value from text in either currency's display
// convention: "$1.234.567", "1,200.50", "25", "-$100.000". Unparseable input
// yields zero; callers must treat zero as "parse failed or legitimately
// zero" and reject it upstream where a positive amount is required.
func (n *Normalizer) ParseAmount(text string) decimal.Decimal {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero
	}

	negative := false
	for strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero
	}

	normalized := normalizeSeparators(s)

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		value = value.Neg()
	}
	return value
}

// normalizeSeparators resolves '.' and ',' ambiguity: the last separator is
// treated as a decimal point only when followed by one or two digits; every
// other separator is grouping. "100.000" is therefore one hundred thousand,
// while "1,200.50" keeps its cents.
func normalizeSeparators(s string) string {
	lastSep := strings.LastIndexAny(s, ".,")
	if lastSep == -1 {
		return s
	}

	fraction := s[lastSep+1:]
	isDecimal := len(fraction) >= 1 && len(fraction) <= 2 && digitsOnly(fraction)

	var b strings.Builder
	for i, r := range s {
		if r == '.' || r == ',' {
			if i == lastSep && isDecimal {
				b.WriteByte('.')
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Format renders amount in the currency's canonical display form:
// COP as integer-grouped "$1.234.567", USD as two-decimal "$1,200.00".
func (n *Normalizer) Format(amount decimal.Decimal, cur domain.Currency) string {
	negative := amount.IsNegative()
	abs := amount.Abs()

	var formatted string
	switch cur {
	case domain.CurrencyUSD:
		fixed := abs.StringFixed(2)
		parts := strings.SplitN(fixed, ".", 2)
		formatted = "$" + groupDigits(parts[0], ',') + "." + parts[1]
	default:
		formatted = "$" + groupDigits(abs.Round(0).String(), '.')
	}

	if negative {
		return "-" + formatted
	}
	return formatted
}

// groupDigits inserts sep every three digits from the right.
func groupDigits(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
