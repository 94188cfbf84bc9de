package subscriptions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expense-bot/internal/currency"
	"github.com/dvloznov/expense-bot/internal/domain"
)

// Poster posts records to both ledgers (the single-writer posting queue).
type Poster interface {
	Post(ctx context.Context, records []domain.ExpenseRecord) bool
}

// Notifier emails a digest of the charged subscriptions.
type Notifier interface {
	NotifyBatch(ctx context.Context, records []domain.ExpenseRecord, subject string) bool
}

// Checker runs the daily recurring-expense check: load the sheet, select
// today's due subscriptions, post them to the ledgers, and email a digest.
type Checker struct {
	reader     *Reader
	normalizer *currency.Normalizer
	poster     Poster
	notifier   Notifier
	loc        *time.Location
	now        func() time.Time
	log        zerolog.Logger
}

// NewChecker wires the daily check.
func NewChecker(reader *Reader, normalizer *currency.Normalizer, poster Poster, notifier Notifier, loc *time.Location, log zerolog.Logger) *Checker {
	return &Checker{
		reader:     reader,
		normalizer: normalizer,
		poster:     poster,
		notifier:   notifier,
		loc:        loc,
		now:        time.Now,
		log:        log,
	}
}

// Run executes one check. Collaborator failures are logged; the check never
// panics and partial results are surfaced via logs, matching the engine's
// convert-at-the-boundary policy.
func (c *Checker) Run(ctx context.Context) {
	today := c.now().In(c.loc)
	c.log.Info().Str("date", today.Format("02/01/2006")).Msg("Checking recurring subscriptions")

	// Refresh so today's postings use a current rate; a stale rate is kept
	// on failure.
	if err := c.normalizer.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Rate refresh failed, using previous rate")
	}

	subs, err := c.reader.Load(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Could not load subscriptions")
		return
	}

	due := Due(subs, today)
	if len(due) == 0 {
		c.log.Info().Msg("No subscriptions due today")
		return
	}

	records := c.toRecords(due, today)

	if c.poster.Post(ctx, records) {
		c.log.Info().Int("count", len(records)).Msg("Recurring expenses posted to ledgers")
	} else {
		c.log.Error().Int("count", len(records)).Msg("Failed to post recurring expenses")
	}

	if c.notifier != nil {
		if c.notifier.NotifyBatch(ctx, records, "📅 Gastos recurrentes del día") {
			c.log.Info().Int("count", len(records)).Msg("Subscription digest sent")
		} else {
			c.log.Error().Msg("Failed to send subscription digest")
		}
	}
}

// toRecords converts due subscriptions into expense records dated today,
// deriving whichever amount the sheet left blank.
func (c *Checker) toRecords(due []Subscription, today time.Time) []domain.ExpenseRecord {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, c.loc)

	records := make([]domain.ExpenseRecord, 0, len(due))
	for _, sub := range due {
		rec := domain.ExpenseRecord{
			Date:           day,
			Description:    sub.Description,
			Category:       domain.NormalizeCategory(sub.Category),
			AmountUSD:      sub.AmountUSD,
			AmountCOP:      sub.AmountCOP,
			SourceCurrency: domain.CurrencyUSD,
		}

		if rec.AmountCOP.IsZero() && !rec.AmountUSD.IsZero() {
			if derived, ok := c.normalizer.Convert(rec.AmountUSD, domain.CurrencyUSD, domain.CurrencyCOP); ok {
				rec.AmountCOP = derived
			}
		}
		if rec.AmountUSD.IsZero() && !rec.AmountCOP.IsZero() {
			rec.SourceCurrency = domain.CurrencyCOP
			if derived, ok := c.normalizer.Convert(rec.AmountCOP, domain.CurrencyCOP, domain.CurrencyUSD); ok {
				rec.AmountUSD = derived
			}
		}

		records = append(records, rec)
	}
	return records
}
