package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/currency"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/invoice"
	"github.com/dvloznov/expense-bot/internal/session"
)

type fakePoster struct {
	result bool
	posted [][]domain.ExpenseRecord
}

func (f *fakePoster) Post(ctx context.Context, records []domain.ExpenseRecord) bool {
	f.posted = append(f.posted, records)
	return f.result
}

type fakeNotifier struct {
	result   bool
	notified []domain.ExpenseRecord
}

func (f *fakeNotifier) Notify(ctx context.Context, record domain.ExpenseRecord) bool {
	f.notified = append(f.notified, record)
	return f.result
}

type fakeExtractor struct {
	text      string
	textErr   error
	fields    map[string]interface{}
	fieldsErr error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f.text, f.textErr
}

func (f *fakeExtractor) ExtractFields(ctx context.Context, text string) (map[string]interface{}, error) {
	return f.fields, f.fieldsErr
}

type engineFixture struct {
	engine    *Engine
	sessions  *session.Store
	poster    *fakePoster
	notifier  *fakeNotifier
	extractor *fakeExtractor
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixtureWithRate(t, decimal.NewFromInt(4000))
}

func newEngineFixtureWithRate(t *testing.T, copPerUSD decimal.Decimal) *engineFixture {
	t.Helper()

	normalizer := currency.NewNormalizer(context.Background(), nil, copPerUSD, zerolog.Nop())
	validator := invoice.NewValidator(normalizer, decimal.NewFromInt(1000), zerolog.Nop())
	sessions := session.NewStore()
	poster := &fakePoster{result: true}
	notifier := &fakeNotifier{result: true}
	extractor := &fakeExtractor{}

	engine := NewEngine(sessions, normalizer, validator, extractor, extractor, poster, notifier, time.UTC, zerolog.Nop())

	return &engineFixture{
		engine:    engine,
		sessions:  sessions,
		poster:    poster,
		notifier:  notifier,
		extractor: extractor,
	}
}

const chatID = int64(42)

func TestEngine_ManualFlowHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.StartManual(chatID)

	reply := f.engine.HandleText(ctx, chatID, "Office rent")
	if len(reply.Buttons) == 0 {
		t.Fatal("description step did not offer category buttons")
	}

	reply = f.engine.HandleCallback(ctx, chatID, "Workspace")
	if !strings.Contains(reply.Text, "Workspace") {
		t.Errorf("category reply = %q, want selected category echoed", reply.Text)
	}

	reply = f.engine.HandleCallback(ctx, chatID, "USD")
	if !strings.Contains(reply.Text, "USD") {
		t.Errorf("currency reply = %q, want selected currency echoed", reply.Text)
	}

	reply = f.engine.HandleText(ctx, chatID, "1200")
	if !strings.Contains(reply.Text, "$1,200.00") {
		t.Errorf("summary = %q, want USD amount formatted", reply.Text)
	}
	if !strings.Contains(reply.Text, "$4.800.000") {
		t.Errorf("summary = %q, want derived COP amount at the 4000 rate", reply.Text)
	}

	f.engine.HandleCallback(ctx, chatID, "confirmar")

	if len(f.poster.posted) != 1 || len(f.poster.posted[0]) != 1 {
		t.Fatalf("posted batches = %+v, want one single-record batch", f.poster.posted)
	}
	rec := f.poster.posted[0][0]
	if rec.Description != "Office rent" {
		t.Errorf("posted description = %q", rec.Description)
	}
	if rec.Category != "Workspace" {
		t.Errorf("posted category = %q", rec.Category)
	}
	if !rec.AmountUSD.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("posted USD = %s, want 1200", rec.AmountUSD)
	}
	if !rec.AmountCOP.Equal(decimal.NewFromInt(4800000)) {
		t.Errorf("posted COP = %s, want 4800000", rec.AmountCOP)
	}
	if rec.Date.IsZero() {
		t.Error("posted record has zero date, want capture day")
	}

	if len(f.notifier.notified) != 1 {
		t.Errorf("notified %d times, want 1", len(f.notifier.notified))
	}
	if _, ok := f.sessions.Get(chatID); ok {
		t.Error("session still active after confirmation")
	}
}

func TestEngine_InvalidAmountRepromptsSameState(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.StartManual(chatID)
	f.engine.HandleText(ctx, chatID, "Office rent")
	f.engine.HandleCallback(ctx, chatID, "Workspace")
	f.engine.HandleCallback(ctx, chatID, "USD")

	for _, bad := range []string{"not a number", "-50", "0"} {
		reply := f.engine.HandleText(ctx, chatID, bad)
		if !strings.Contains(reply.Text, "no es válido") {
			t.Errorf("HandleText(%q) = %q, want invalid-amount reprompt", bad, reply.Text)
		}
		sess, ok := f.sessions.Get(chatID)
		if !ok || sess.Step != session.StepAmount {
			t.Fatalf("after %q session left the amount step", bad)
		}
		if !sess.Record.AmountUSD.IsZero() || !sess.Record.AmountCOP.IsZero() {
			t.Errorf("after %q amounts were mutated: %+v", bad, sess.Record)
		}
	}

	// A valid amount still works after any number of retries.
	reply := f.engine.HandleText(ctx, chatID, "25.50")
	if !strings.Contains(reply.Text, "$25.50") {
		t.Errorf("recovery summary = %q", reply.Text)
	}
}

func TestEngine_CancelFromEveryState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ctx context.Context, f *engineFixture)
	}{
		{"description step", func(ctx context.Context, f *engineFixture) {
			f.engine.StartManual(chatID)
		}},
		{"category step", func(ctx context.Context, f *engineFixture) {
			f.engine.StartManual(chatID)
			f.engine.HandleText(ctx, chatID, "Office rent")
		}},
		{"currency step", func(ctx context.Context, f *engineFixture) {
			f.engine.StartManual(chatID)
			f.engine.HandleText(ctx, chatID, "Office rent")
			f.engine.HandleCallback(ctx, chatID, "Workspace")
		}},
		{"amount step", func(ctx context.Context, f *engineFixture) {
			f.engine.StartManual(chatID)
			f.engine.HandleText(ctx, chatID, "Office rent")
			f.engine.HandleCallback(ctx, chatID, "Workspace")
			f.engine.HandleCallback(ctx, chatID, "COP")
		}},
		{"confirmation step", func(ctx context.Context, f *engineFixture) {
			f.engine.StartManual(chatID)
			f.engine.HandleText(ctx, chatID, "Office rent")
			f.engine.HandleCallback(ctx, chatID, "Workspace")
			f.engine.HandleCallback(ctx, chatID, "COP")
			f.engine.HandleText(ctx, chatID, "100000")
		}},
		{"attachment step", func(ctx context.Context, f *engineFixture) {
			f.engine.StartInvoice(chatID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			ctx := context.Background()
			tt.setup(ctx, f)

			f.engine.Cancel(chatID)

			if _, ok := f.sessions.Get(chatID); ok {
				t.Error("session survived Cancel()")
			}
			if len(f.poster.posted) != 0 {
				t.Error("Cancel() posted records")
			}
		})
	}
}

func TestEngine_FreeTextDuringButtonStepsDoesNotAdvance(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.StartManual(chatID)
	f.engine.HandleText(ctx, chatID, "Office rent")

	// Category expects a button press, not text.
	f.engine.HandleText(ctx, chatID, "Workspace")
	sess, _ := f.sessions.Get(chatID)
	if sess.Step != session.StepCategory {
		t.Errorf("free text advanced category step to %v", sess.Step)
	}

	// An unknown callback token is also rejected.
	f.engine.HandleCallback(ctx, chatID, "NoExiste")
	sess, _ = f.sessions.Get(chatID)
	if sess.Step != session.StepCategory {
		t.Errorf("unknown token advanced category step to %v", sess.Step)
	}
}

func TestEngine_PostingFailureReportsError(t *testing.T) {
	f := newEngineFixture(t)
	f.poster.result = false
	ctx := context.Background()

	f.engine.StartManual(chatID)
	f.engine.HandleText(ctx, chatID, "Office rent")
	f.engine.HandleCallback(ctx, chatID, "Workspace")
	f.engine.HandleCallback(ctx, chatID, "COP")
	f.engine.HandleText(ctx, chatID, "100000")

	reply := f.engine.HandleCallback(ctx, chatID, "confirmar")
	if !strings.Contains(reply.Text, "Error al registrar") {
		t.Errorf("reply = %q, want posting error message", reply.Text)
	}
	if _, ok := f.sessions.Get(chatID); ok {
		t.Error("session still active after failed posting; flow must be terminal")
	}
	// Notification is attempted regardless of the posting outcome.
	if len(f.notifier.notified) != 1 {
		t.Errorf("notified %d times, want 1", len(f.notifier.notified))
	}
}

func TestEngine_InvoiceFlowHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	f.extractor.text = "ACME Hosting Invoice\nTotal: 25.50 USD"
	f.extractor.fields = map[string]interface{}{
		"fecha":     "02/03/2025",
		"detalle":   "Hosting mensual",
		"monto":     25.5,
		"moneda":    "USD",
		"categoria": "Tech",
	}
	ctx := context.Background()

	f.engine.StartInvoice(chatID)

	reply := f.engine.HandleAttachment(ctx, chatID, Attachment{Kind: AttachmentImage, Data: []byte{1}, MIMEType: "image/jpeg"})
	if !strings.Contains(reply.Text, "Hosting mensual") {
		t.Errorf("summary = %q, want extracted description", reply.Text)
	}
	if !strings.Contains(reply.Text, "02/03/2025") {
		t.Errorf("summary = %q, want invoice date", reply.Text)
	}

	sess, ok := f.sessions.Get(chatID)
	if !ok || sess.Step != session.StepConfirmation {
		t.Fatal("attachment did not advance to confirmation")
	}
	// Counterpart derived at the 4000 default rate.
	if !sess.Record.AmountCOP.Equal(decimal.NewFromInt(102000)) {
		t.Errorf("derived COP = %s, want 102000", sess.Record.AmountCOP)
	}

	f.engine.HandleCallback(ctx, chatID, "confirmar")
	if len(f.poster.posted) != 1 {
		t.Fatalf("posted %d batches, want 1", len(f.poster.posted))
	}
	if f.poster.posted[0][0].SourceCurrency != domain.CurrencyUSD {
		t.Errorf("posted source currency = %s, want USD", f.poster.posted[0][0].SourceCurrency)
	}
}

func TestEngine_InvoiceDerivationWithoutRateWarns(t *testing.T) {
	f := newEngineFixtureWithRate(t, decimal.Zero)
	f.extractor.text = "ACME Hosting Invoice\nTotal: 25.50 USD"
	f.extractor.fields = map[string]interface{}{
		"detalle": "Hosting mensual",
		"monto":   25.5,
		"moneda":  "USD",
	}
	ctx := context.Background()

	f.engine.StartInvoice(chatID)
	reply := f.engine.HandleAttachment(ctx, chatID, Attachment{Kind: AttachmentImage, Data: []byte{1}, MIMEType: "image/jpeg"})

	if !strings.Contains(reply.Text, "No hay tasa de cambio") {
		t.Errorf("reply = %q, want unavailable-rate warning", reply.Text)
	}

	sess, ok := f.sessions.Get(chatID)
	if !ok || sess.Step != session.StepConfirmation {
		t.Fatal("derivation failure did not reach confirmation")
	}
	if !sess.Record.AmountCOP.IsZero() {
		t.Errorf("AmountCOP = %s, want 0 with no rate", sess.Record.AmountCOP)
	}
	if !sess.Record.AmountUSD.Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("AmountUSD = %s, want the extracted source amount", sess.Record.AmountUSD)
	}
}

func TestEngine_ExtractionFailureAbortsFlow(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeExtractor)
	}{
		{"text extraction error", func(f *fakeExtractor) {
			f.textErr = errors.New("model unavailable")
		}},
		{"empty transcription", func(f *fakeExtractor) {
			f.text = "   "
		}},
		{"field extraction error", func(f *fakeExtractor) {
			f.text = "some invoice text"
			f.fieldsErr = errors.New("malformed JSON")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			tt.setup(f.extractor)
			ctx := context.Background()

			f.engine.StartInvoice(chatID)
			reply := f.engine.HandleAttachment(ctx, chatID, Attachment{Kind: AttachmentDocument, Data: []byte{1}, MIMEType: "application/pdf"})

			if !strings.Contains(reply.Text, "/gasto") {
				t.Errorf("reply = %q, want redirect to the manual flow", reply.Text)
			}
			if _, ok := f.sessions.Get(chatID); ok {
				t.Error("session survived extraction failure; abort must be terminal")
			}
			if len(f.poster.posted) != 0 {
				t.Error("extraction failure still posted records")
			}
		})
	}
}

func TestEngine_AttachmentOutsideInvoiceFlowIsRejected(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	att := Attachment{Kind: AttachmentImage, Data: []byte{1}, MIMEType: "image/jpeg"}

	// No session at all.
	reply := f.engine.HandleAttachment(ctx, chatID, att)
	if !strings.Contains(reply.Text, "/help") {
		t.Errorf("no-session reply = %q, want unknown-message fallback", reply.Text)
	}

	// Manual flow never accepts attachments.
	f.engine.StartManual(chatID)
	reply = f.engine.HandleAttachment(ctx, chatID, att)
	if !strings.Contains(reply.Text, "/help") {
		t.Errorf("manual-flow reply = %q, want unknown-message fallback", reply.Text)
	}
	sess, _ := f.sessions.Get(chatID)
	if sess.Step != session.StepDescription {
		t.Errorf("attachment advanced the manual flow to %v", sess.Step)
	}
}

func TestEngine_StartReplacesActiveFlow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.StartManual(chatID)
	f.engine.HandleText(ctx, chatID, "Office rent")

	f.engine.StartInvoice(chatID)

	sess, ok := f.sessions.Get(chatID)
	if !ok {
		t.Fatal("no session after restart")
	}
	if sess.Flow != session.FlowInvoice || sess.Step != session.StepAttachment {
		t.Errorf("restart kept old flow state: flow=%v step=%v", sess.Flow, sess.Step)
	}
	if sess.Record.Description != "" {
		t.Errorf("restart kept partial record %q", sess.Record.Description)
	}
}
