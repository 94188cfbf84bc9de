// Package subscriptions reads the recurring-expense sheet and determines
// which subscriptions fall due on a given day.
package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/ledger"
)

// subscriptionDateLayout is the DD/MM/YYYY convention of the sheet.
const subscriptionDateLayout = "02/01/2006"

// statusActive marks a subscription that should still be charged.
const statusActive = "activo"

// Subscription is one recurring expense row from the "Gastos Fijos" sheet.
type Subscription struct {
	FirstPayment time.Time
	Description  string
	AmountUSD    decimal.Decimal
	AmountCOP    decimal.Decimal
	Category     string
	PaidWith     string
	PaidBy       string
	Status       string
}

// DueOn reports whether the subscription recurs on the given day: it is
// still active and the day-of-month of its first payment matches, clamped to
// the month's last day so an anchor on the 29th-31st still charges in
// shorter months.
func (s Subscription) DueOn(day time.Time) bool {
	if !strings.EqualFold(strings.TrimSpace(s.Status), statusActive) {
		return false
	}
	anchor := s.FirstPayment.Day()
	if last := lastDayOfMonth(day); anchor > last {
		anchor = last
	}
	return day.Day() == anchor
}

func lastDayOfMonth(day time.Time) int {
	return time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, day.Location()).Day()
}

// AmountParser extracts numeric values from the sheet's monetary text.
type AmountParser interface {
	ParseAmount(text string) decimal.Decimal
}

// Reader loads subscriptions from the tabular store.
type Reader struct {
	store  ledger.TabularStore
	sheet  string
	parser AmountParser
	log    zerolog.Logger
}

// NewReader creates a Reader over the given sheet tab.
func NewReader(store ledger.TabularStore, sheet string, parser AmountParser, log zerolog.Logger) *Reader {
	return &Reader{store: store, sheet: sheet, parser: parser, log: log}
}

// headerFields maps normalized sheet headers to canonical field names.
var headerFields = map[string]string{
	"fecha_primer_pago": "fecha",
	"detalle":           "detalle",
	"monto_usd":         "montoUSD",
	"monto_cop":         "montoCOP",
	"categoría":         "categoria",
	"categoria":         "categoria",
	"pagada_con":        "pagadaCon",
	"pagada_por":        "pagadaPor",
	"estado":            "estado",
}

// Load reads the full sheet span and converts each data row into a
// Subscription. Rows missing required fields are skipped with a warning.
func (r *Reader) Load(ctx context.Context) ([]Subscription, error) {
	rows, err := r.store.ReadRange(ctx, r.sheet, "A:H")
	if err != nil {
		return nil, fmt.Errorf("Load: reading sheet %q: %w", r.sheet, err)
	}
	if len(rows) == 0 {
		r.log.Warn().Str("sheet", r.sheet).Msg("No data found in subscriptions sheet")
		return nil, nil
	}

	headers := normalizeHeaders(rows[0])

	var subs []Subscription
	for i, row := range rows[1:] {
		fields := make(map[string]string, len(headers))
		for col, name := range headers {
			if col < len(row) {
				fields[name] = strings.TrimSpace(row[col])
			}
		}

		sub, err := r.buildSubscription(fields)
		if err != nil {
			r.log.Warn().Err(err).Int("row", i+2).Msg("Skipping subscription row")
			continue
		}
		subs = append(subs, sub)
	}

	r.log.Info().Int("count", len(subs)).Str("sheet", r.sheet).Msg("Subscriptions loaded")
	return subs, nil
}

func (r *Reader) buildSubscription(fields map[string]string) (Subscription, error) {
	for _, required := range []string{"fecha", "detalle", "montoUSD", "estado"} {
		if fields[required] == "" {
			return Subscription{}, fmt.Errorf("missing required field %q", required)
		}
	}

	firstPayment, err := time.Parse(subscriptionDateLayout, fields["fecha"])
	if err != nil {
		return Subscription{}, fmt.Errorf("invalid date %q: %w", fields["fecha"], err)
	}

	return Subscription{
		FirstPayment: firstPayment,
		Description:  fields["detalle"],
		AmountUSD:    r.parser.ParseAmount(fields["montoUSD"]),
		AmountCOP:    r.parser.ParseAmount(fields["montoCOP"]),
		Category:     fields["categoria"],
		PaidWith:     fields["pagadaCon"],
		PaidBy:       fields["pagadaPor"],
		Status:       fields["estado"],
	}, nil
}

// normalizeHeaders lowercases headers and replaces spaces with underscores,
// then maps them onto canonical field names. Unknown headers keep their
// normalized name.
func normalizeHeaders(headerRow []string) map[int]string {
	headers := make(map[int]string, len(headerRow))
	for i, h := range headerRow {
		norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if mapped, ok := headerFields[norm]; ok {
			headers[i] = mapped
		} else {
			headers[i] = norm
		}
	}
	return headers
}

// Due filters the subscriptions recurring on the given day.
func Due(subs []Subscription, day time.Time) []Subscription {
	var due []Subscription
	for _, sub := range subs {
		if sub.DueOn(day) {
			due = append(due, sub)
		}
	}
	return due
}
