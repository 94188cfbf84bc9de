// Package notify delivers best-effort email notifications about captured
// expenses via Resend. Notification outcomes never affect posting results.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// Formatter renders amounts for display. Satisfied by currency.Normalizer.
type Formatter interface {
	Format(amount decimal.Decimal, cur domain.Currency) string
}

// EmailNotifier sends expense notifications through the Resend API.
type EmailNotifier struct {
	client    *resend.Client
	formatter Formatter
	sender    string
	recipient string
	log       zerolog.Logger
}

// NewEmailNotifier creates a notifier. With an empty API key or recipient it
// still constructs but every Notify reports false.
func NewEmailNotifier(apiKey, sender, recipient string, formatter Formatter, log zerolog.Logger) *EmailNotifier {
	if apiKey == "" {
		log.Warn().Msg("RESEND_API_KEY not configured, email notifications disabled")
	}
	if recipient == "" {
		log.Warn().Msg("NOTIFICATION_EMAIL not configured, email notifications disabled")
	}
	return &EmailNotifier{
		client:    resend.NewClient(apiKey),
		formatter: formatter,
		sender:    sender,
		recipient: recipient,
		log:       log,
	}
}

// Notify emails a single captured expense. Best-effort: failures are logged
// and reported as false, never as errors.
func (n *EmailNotifier) Notify(ctx context.Context, record domain.ExpenseRecord) bool {
	return n.NotifyBatch(ctx, []domain.ExpenseRecord{record}, "💸 Nuevo gasto registrado")
}

// NotifyBatch emails a digest of expenses under the given subject.
func (n *EmailNotifier) NotifyBatch(ctx context.Context, records []domain.ExpenseRecord, subject string) bool {
	if len(records) == 0 {
		return false
	}
	if n.sender == "" || n.recipient == "" {
		return false
	}

	html, err := n.render(records)
	if err != nil {
		n.log.Error().Err(err).Msg("Failed to render notification email")
		return false
	}

	params := &resend.SendEmailRequest{
		From:    n.sender,
		To:      []string{n.recipient},
		Subject: subject,
		Html:    html,
	}

	sent, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		n.log.Error().Err(err).Int("records", len(records)).Msg("Failed to send notification email")
		return false
	}

	n.log.Info().Str("email_id", sent.Id).Int("records", len(records)).Msg("Notification email sent")
	return true
}

type emailRow struct {
	Date        string
	Description string
	Category    string
	AmountCOP   string
	AmountUSD   string
}

type emailData struct {
	Date     string
	Rows     []emailRow
	TotalCOP string
	TotalUSD string
}

func (n *EmailNotifier) render(records []domain.ExpenseRecord) (string, error) {
	data := emailData{Date: time.Now().Format("02/01/2006")}

	totalCOP := decimal.Zero
	totalUSD := decimal.Zero
	for _, rec := range records {
		data.Rows = append(data.Rows, emailRow{
			Date:        rec.Date.Format("02/01/2006"),
			Description: rec.Description,
			Category:    rec.Category,
			AmountCOP:   n.formatter.Format(rec.AmountCOP, domain.CurrencyCOP),
			AmountUSD:   n.formatter.Format(rec.AmountUSD, domain.CurrencyUSD),
		})
		totalCOP = totalCOP.Add(rec.AmountCOP)
		totalUSD = totalUSD.Add(rec.AmountUSD)
	}
	data.TotalCOP = n.formatter.Format(totalCOP, domain.CurrencyCOP)
	data.TotalUSD = n.formatter.Format(totalUSD, domain.CurrencyUSD)

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render: executing template: %w", err)
	}
	return buf.String(), nil
}

var emailTemplate = template.Must(template.New("expenses").Parse(`
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; padding: 20px; }
  table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
  th, td { border: 1px solid #dddddd; text-align: left; padding: 8px; }
  th { background-color: #4CAF50; color: white; }
  .total { font-weight: bold; }
</style>
</head>
<body>
  <h2>Gastos registrados — {{.Date}}</h2>
  <table>
    <tr><th>Fecha</th><th>Detalle</th><th>Categoría</th><th>Monto COP</th><th>Monto USD</th></tr>
    {{range .Rows}}
    <tr><td>{{.Date}}</td><td>{{.Description}}</td><td>{{.Category}}</td><td>{{.AmountCOP}}</td><td>{{.AmountUSD}}</td></tr>
    {{end}}
    <tr class="total"><td colspan="3">Total</td><td>{{.TotalCOP}}</td><td>{{.TotalUSD}}</td></tr>
  </table>
</body>
</html>
`))
