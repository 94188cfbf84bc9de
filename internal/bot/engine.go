package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expense-bot/internal/currency"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/invoice"
	"github.com/dvloznov/expense-bot/internal/session"
)

// Poster posts a batch of records to both ledgers. Satisfied by
// ledger.Poster and ledger.PostingQueue.
type Poster interface {
	Post(ctx context.Context, records []domain.ExpenseRecord) bool
}

// Notifier sends a best-effort notification about a captured expense. Its
// outcome never affects the posting result.
type Notifier interface {
	Notify(ctx context.Context, record domain.ExpenseRecord) bool
}

// Engine runs the manual and invoice capture flows. Each chat's events are
// processed to completion one at a time; the engine holds no cross-chat
// mutable state beyond the session store.
type Engine struct {
	sessions       *session.Store
	normalizer     *currency.Normalizer
	validator      *invoice.Validator
	textExtractor  invoice.TextExtractor
	fieldExtractor invoice.FieldExtractor
	poster         Poster
	notifier       Notifier
	loc            *time.Location
	now            func() time.Time
	log            zerolog.Logger
}

// NewEngine wires the capture engine with its collaborators.
func NewEngine(
	sessions *session.Store,
	normalizer *currency.Normalizer,
	validator *invoice.Validator,
	textExtractor invoice.TextExtractor,
	fieldExtractor invoice.FieldExtractor,
	poster Poster,
	notifier Notifier,
	loc *time.Location,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		sessions:       sessions,
		normalizer:     normalizer,
		validator:      validator,
		textExtractor:  textExtractor,
		fieldExtractor: fieldExtractor,
		poster:         poster,
		notifier:       notifier,
		loc:            loc,
		now:            time.Now,
		log:            log,
	}
}

// Welcome is the /start greeting.
func (e *Engine) Welcome(firstName string) Reply {
	return Reply{Text: fmt.Sprintf(
		"👋 Hola %s!\n\n"+
			"Soy el bot de gestión de gastos. Puedo ayudarte a registrar gastos variables en las hojas de contabilidad.\n\n"+
			"Usa /gasto para registrar un gasto manualmente\n"+
			"Usa /factura para registrar un gasto desde una foto o PDF de la factura\n"+
			"Usa /help para ver la lista de comandos disponibles",
		firstName,
	)}
}

// Help lists the available commands.
func (e *Engine) Help() Reply {
	return Reply{Text: "🔍 Comandos disponibles:\n\n" +
		"/gasto - Registra un nuevo gasto variable paso a paso\n" +
		"/factura - Registra un gasto desde una factura (foto o PDF)\n" +
		"/cancelar - Cancela el proceso actual\n" +
		"/help - Muestra este mensaje de ayuda"}
}

// Unknown is the fallback for messages outside any flow.
func (e *Engine) Unknown() Reply {
	return Reply{Text: "No entiendo ese mensaje. Usa /help para ver la lista de comandos disponibles."}
}

// StartManual begins the guided flow, replacing any active session.
func (e *Engine) StartManual(chatID int64) Reply {
	e.sessions.Begin(chatID, session.FlowManual)
	return Reply{Text: "📝 Vamos a registrar un nuevo gasto variable.\n\n" +
		"Por favor, describe brevemente el gasto:"}
}

// StartInvoice begins the attachment flow, replacing any active session.
func (e *Engine) StartInvoice(chatID int64) Reply {
	e.sessions.Begin(chatID, session.FlowInvoice)
	return Reply{Text: "🧾 Envíame la factura como foto o como documento PDF y extraeré los datos del gasto."}
}

// Cancel unconditionally terminates the active flow. It is accepted in every
// non-terminal state and reaches the terminal region in one transition.
func (e *Engine) Cancel(chatID int64) Reply {
	e.sessions.End(chatID)
	return Reply{Text: "❌ Operación cancelada."}
}

// HandleText processes a free-text message for the chat's active flow.
func (e *Engine) HandleText(ctx context.Context, chatID int64, text string) Reply {
	sess, ok := e.sessions.Get(chatID)
	if !ok {
		return e.Unknown()
	}

	switch sess.Step {
	case session.StepDescription:
		return e.applyDescription(sess, text)
	case session.StepCategory:
		return Reply{Text: "🏷️ Selecciona una categoría usando los botones:", Buttons: categoryButtons()}
	case session.StepCurrency:
		return Reply{Text: "💱 Selecciona la moneda usando los botones:", Buttons: currencyButtons()}
	case session.StepAmount:
		return e.applyAmount(sess, text)
	case session.StepConfirmation:
		return Reply{
			Text:    "Usa los botones para confirmar o cancelar el gasto, o envía /cancelar.",
			Buttons: confirmButtons(),
		}
	case session.StepAttachment:
		return Reply{Text: "📎 Estoy esperando la factura. Envíala como foto o PDF, o usa /cancelar."}
	default:
		return e.Unknown()
	}
}

func (e *Engine) applyDescription(sess *session.Session, text string) Reply {
	desc := strings.TrimSpace(text)
	if desc == "" {
		return Reply{Text: "Por favor, describe brevemente el gasto:"}
	}
	sess.Record.Description = desc
	sess.Step = session.StepCategory
	return Reply{Text: "🏷️ Selecciona una categoría para el gasto:", Buttons: categoryButtons()}
}

func (e *Engine) applyAmount(sess *session.Session, text string) Reply {
	amount := e.normalizer.ParseAmount(text)
	if !amount.IsPositive() {
		// Zero is the parse-failure sentinel; a positive amount is required
		// here. Re-prompt in the same state, no retry limit.
		return Reply{Text: "⚠️ El monto ingresado no es válido. Por favor, ingresa un número.\n" +
			amountExample(sess.Record.SourceCurrency)}
	}

	source := sess.Record.SourceCurrency
	counterpart := domain.CurrencyUSD
	if source == domain.CurrencyUSD {
		counterpart = domain.CurrencyCOP
	}

	derived, ok := e.normalizer.Convert(amount, source, counterpart)
	if !ok {
		e.log.Error().
			Int64("chat_id", sess.ChatID).
			Str("from", string(source)).
			Msg("Conversion unavailable during amount entry")
		return Reply{Text: "⚠️ No hay tasa de cambio disponible en este momento. Intenta de nuevo más tarde o usa /cancelar."}
	}

	if source == domain.CurrencyUSD {
		sess.Record.AmountUSD = amount
		sess.Record.AmountCOP = derived
	} else {
		sess.Record.AmountCOP = amount
		sess.Record.AmountUSD = derived
	}
	sess.Step = session.StepConfirmation

	return Reply{Text: e.summary(sess.Record), Buttons: confirmButtons()}
}

// HandleCallback processes an inline-keyboard selection.
func (e *Engine) HandleCallback(ctx context.Context, chatID int64, token string) Reply {
	sess, ok := e.sessions.Get(chatID)
	if !ok {
		return e.Unknown()
	}

	switch sess.Step {
	case session.StepCategory:
		if !domain.IsCategory(token) {
			return Reply{Text: "🏷️ Selecciona una categoría usando los botones:", Buttons: categoryButtons(), EditPrompt: true}
		}
		sess.Record.Category = domain.NormalizeCategory(token)
		sess.Step = session.StepCurrency
		return Reply{
			Text: fmt.Sprintf("Categoría seleccionada: %s\n\n💱 ¿En qué moneda vas a ingresar el monto?",
				sess.Record.Category),
			Buttons:    currencyButtons(),
			EditPrompt: true,
		}

	case session.StepCurrency:
		var cur domain.Currency
		switch token {
		case tokenCurrencyCOP:
			cur = domain.CurrencyCOP
		case tokenCurrencyUSD:
			cur = domain.CurrencyUSD
		default:
			return Reply{Text: "💱 Selecciona la moneda usando los botones:", Buttons: currencyButtons(), EditPrompt: true}
		}
		sess.Record.SourceCurrency = cur
		sess.Step = session.StepAmount
		return Reply{
			Text:       fmt.Sprintf("Moneda seleccionada: %s\n\n💰 Ingresa el monto:\n%s", cur, amountExample(cur)),
			EditPrompt: true,
		}

	case session.StepConfirmation:
		switch token {
		case tokenCancel:
			e.sessions.End(chatID)
			return Reply{Text: "❌ Registro de gasto cancelado.", EditPrompt: true}
		case tokenConfirm:
			return e.confirm(ctx, sess)
		default:
			return Reply{
				Text:       "Usa los botones para confirmar o cancelar el gasto.",
				Buttons:    confirmButtons(),
				EditPrompt: true,
			}
		}

	default:
		return e.Unknown()
	}
}

// confirm posts the completed record to both ledgers and, regardless of the
// posting outcome, attempts a best-effort notification. Terminal either way.
func (e *Engine) confirm(ctx context.Context, sess *session.Session) Reply {
	record := sess.Record
	if record.Date.IsZero() {
		now := e.now().In(e.loc)
		record.Date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	}

	posted := e.poster.Post(ctx, []domain.ExpenseRecord{record})

	notified := false
	if e.notifier != nil {
		notified = e.notifier.Notify(ctx, record)
	}

	e.sessions.End(sess.ChatID)

	if !posted {
		e.log.Error().Int64("chat_id", sess.ChatID).Msg("Expense posting failed")
		return Reply{
			Text: "❌ Error al registrar el gasto en las hojas de contabilidad.\n" +
				"Por favor, intenta nuevamente o contacta al administrador.",
			EditPrompt: true,
		}
	}

	msg := "✅ Gasto registrado exitosamente\n\n"
	if notified {
		msg += "✉️ Se ha enviado una notificación por correo electrónico."
	} else {
		msg += "⚠️ No se pudo enviar la notificación por correo."
	}
	return Reply{Text: msg, EditPrompt: true}
}

// HandleAttachment processes an invoice image or document. Only the invoice
// flow's attachment state accepts it; any collaborator failure aborts the
// flow to a terminal message pointing at the manual flow, since unreadable
// files and API outages are not retryable within the same turn.
func (e *Engine) HandleAttachment(ctx context.Context, chatID int64, att Attachment) Reply {
	sess, ok := e.sessions.Get(chatID)
	if !ok || sess.Step != session.StepAttachment {
		return e.Unknown()
	}
	if att.Kind != AttachmentImage && att.Kind != AttachmentDocument {
		return Reply{Text: "📎 Estoy esperando la factura. Envíala como foto o PDF, o usa /cancelar."}
	}

	text, err := e.textExtractor.ExtractText(ctx, att.Data, att.MIMEType)
	if err != nil || strings.TrimSpace(text) == "" {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("Invoice text extraction failed")
		return e.abortExtraction(chatID)
	}

	fields, err := e.fieldExtractor.ExtractFields(ctx, text)
	if err != nil {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("Invoice field extraction failed")
		return e.abortExtraction(chatID)
	}

	record := e.validator.Validate(fields)

	source := record.SourceCurrency
	counterpart := domain.CurrencyUSD
	if source == domain.CurrencyUSD {
		counterpart = domain.CurrencyCOP
	}
	derived, converted := e.normalizer.Convert(record.SourceAmount(), source, counterpart)
	if converted {
		if counterpart == domain.CurrencyUSD {
			record.AmountUSD = derived
		} else {
			record.AmountCOP = derived
		}
	} else {
		e.log.Error().
			Int64("chat_id", chatID).
			Str("from", string(source)).
			Msg("Conversion unavailable during invoice derivation")
	}

	sess.Record = record
	sess.Step = session.StepConfirmation

	text = "🧾 Esto es lo que encontré en la factura:\n\n" + e.summary(record)
	if !converted {
		text += "\n\n⚠️ No hay tasa de cambio disponible; el monto equivalente quedó en cero. Verifica antes de confirmar o usa /cancelar."
	}
	return Reply{Text: text, Buttons: confirmButtons()}
}

func (e *Engine) abortExtraction(chatID int64) Reply {
	e.sessions.End(chatID)
	return Reply{Text: "❌ No pude leer los datos de la factura.\n" +
		"Por favor, registra el gasto manualmente con /gasto."}
}

// summary renders the collected fields plus the derived conversion for the
// confirmation prompt.
func (e *Engine) summary(record domain.ExpenseRecord) string {
	date := record.Date
	if date.IsZero() {
		date = e.now().In(e.loc)
	}

	var derivedNote string
	if record.SourceCurrency == domain.CurrencyUSD {
		derivedNote = fmt.Sprintf("Monto COP (derivado): %s", e.normalizer.Format(record.AmountCOP, domain.CurrencyCOP))
	} else {
		derivedNote = fmt.Sprintf("Monto USD (derivado): %s", e.normalizer.Format(record.AmountUSD, domain.CurrencyUSD))
	}

	return fmt.Sprintf(
		"📋 Resumen del gasto:\n\n"+
			"Fecha: %s\n"+
			"Detalle: %s\n"+
			"Categoría: %s\n"+
			"Monto %s: %s\n"+
			"%s\n\n"+
			"¿Deseas registrar este gasto?",
		date.Format("02/01/2006"),
		record.Description,
		record.Category,
		record.SourceCurrency,
		e.normalizer.Format(record.SourceAmount(), record.SourceCurrency),
		derivedNote,
	)
}

func categoryButtons() [][]Button {
	var rows [][]Button
	var row []Button
	for i, cat := range domain.Categories {
		row = append(row, Button{Label: cat, Token: cat})
		if (i+1)%3 == 0 || i == len(domain.Categories)-1 {
			rows = append(rows, row)
			row = nil
		}
	}
	return rows
}

func currencyButtons() [][]Button {
	return [][]Button{{
		{Label: "🇨🇴 COP", Token: tokenCurrencyCOP},
		{Label: "🇺🇸 USD", Token: tokenCurrencyUSD},
	}}
}

func confirmButtons() [][]Button {
	return [][]Button{{
		{Label: "✅ Confirmar", Token: tokenConfirm},
		{Label: "❌ Cancelar", Token: tokenCancel},
	}}
}

func amountExample(cur domain.Currency) string {
	if cur == domain.CurrencyUSD {
		return "Ejemplo: 25 o $25.50"
	}
	return "Ejemplo: 100000 o $100.000"
}
