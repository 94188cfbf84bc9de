package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// ledgerDateLayout is the MM/DD/YYYY convention both sheets use.
const ledgerDateLayout = "01/02/2006"

// movementPrefix annotates movement-ledger descriptions so recurring and
// bot-captured outflows are distinguishable from manual entries.
const movementPrefix = "Gasto recurrente: "

// Formatter renders an amount in a currency's display convention. Satisfied
// by currency.Normalizer.
type Formatter interface {
	Format(amount decimal.Decimal, cur domain.Currency) string
}

// Poster appends expense records to both ledgers.
//
// The dual write is two-phase and NOT atomic: one ledger may be written while
// the other fails. A divergence is never rolled back; it is logged as an
// operator-actionable inconsistency and surfaced as a false result so the
// whole capture can be retried or reconciled manually. Concurrent Post calls
// probe row counts independently and can race; route postings through
// PostingQueue to serialize them.
type Poster struct {
	store          TabularStore
	formatter      Formatter
	expensesSheet  string
	movementsSheet string
	numericCells   bool
	log            zerolog.Logger
}

// NewPoster creates a Poster. numericCells selects typed numeric amount
// cells; otherwise amounts are written as display-formatted text.
func NewPoster(store TabularStore, formatter Formatter, expensesSheet, movementsSheet string, numericCells bool, log zerolog.Logger) *Poster {
	return &Poster{
		store:          store,
		formatter:      formatter,
		expensesSheet:  expensesSheet,
		movementsSheet: movementsSheet,
		numericCells:   numericCells,
		log:            log,
	}
}

// Post appends records to the expense ledger (positive line items) and the
// movement ledger (negated line items). It returns true only if both batch
// writes succeed; an empty input succeeds trivially without touching either
// ledger. No error ever propagates past this method.
func (p *Poster) Post(ctx context.Context, records []domain.ExpenseRecord) bool {
	if len(records) == 0 {
		p.log.Info().Msg("No expenses to post")
		return true
	}

	expensesOK := p.appendExpenses(ctx, records)
	movementsOK := p.appendMovements(ctx, records)

	if expensesOK != movementsOK {
		p.log.Error().
			Bool("expenses_written", expensesOK).
			Bool("movements_written", movementsOK).
			Int("records", len(records)).
			Msg("Ledger divergence: one ledger written, the other not; manual reconciliation required")
	}

	return expensesOK && movementsOK
}

func (p *Poster) appendExpenses(ctx context.Context, records []domain.ExpenseRecord) bool {
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.Date.Format(ledgerDateLayout),
			rec.Description,
			rec.Category,
			p.amountCell(rec.AmountCOP, domain.CurrencyCOP),
			p.amountCell(rec.AmountUSD, domain.CurrencyUSD),
		})
	}

	if err := p.appendAt(ctx, p.expensesSheet, rows); err != nil {
		p.log.Error().Err(err).Str("sheet", p.expensesSheet).Msg("Failed to write expense ledger")
		return false
	}

	p.log.Info().Int("rows", len(rows)).Str("sheet", p.expensesSheet).Msg("Expenses posted")
	return true
}

func (p *Poster) appendMovements(ctx context.Context, records []domain.ExpenseRecord) bool {
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		// Always abs-then-negate so a double-negative input cannot produce a
		// positive movement.
		outflow := rec.AmountCOP.Abs().Neg()
		rows = append(rows, []interface{}{
			rec.Date.Format(ledgerDateLayout),
			movementPrefix + rec.Description,
			p.amountCell(outflow, domain.CurrencyCOP),
		})
	}

	if err := p.appendAt(ctx, p.movementsSheet, rows); err != nil {
		p.log.Error().Err(err).Str("sheet", p.movementsSheet).Msg("Failed to write movement ledger")
		return false
	}

	p.log.Info().Int("rows", len(rows)).Str("sheet", p.movementsSheet).Msg("Movements posted")
	return true
}

// appendAt probes the sheet's key column for its occupied row count and
// writes the batch at the next free row.
func (p *Poster) appendAt(ctx context.Context, sheet string, rows [][]interface{}) error {
	existing, err := p.store.ReadRange(ctx, sheet, "A:A")
	if err != nil {
		return fmt.Errorf("appendAt: probing %s: %w", sheet, err)
	}
	nextRow := len(existing) + 1

	written, err := p.store.AppendRows(ctx, sheet, nextRow, rows)
	if err != nil {
		return fmt.Errorf("appendAt: writing %s at row %d: %w", sheet, nextRow, err)
	}
	if written != len(rows) {
		p.log.Warn().
			Str("sheet", sheet).
			Int("expected", len(rows)).
			Int("written", written).
			Msg("Unexpected written row count")
	}
	return nil
}

// amountCell renders the amount for the configured sheet convention.
func (p *Poster) amountCell(amount decimal.Decimal, cur domain.Currency) interface{} {
	if p.numericCells {
		f, _ := amount.Float64()
		return f
	}
	return p.formatter.Format(amount, cur)
}

// TodayIn returns the calendar day in the given location, for callers that
// post capture-time records.
func TodayIn(loc *time.Location) time.Time {
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}
