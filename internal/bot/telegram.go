package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxAttachmentBytes caps invoice downloads; Telegram bot files top out at
// 20MB anyway.
const maxAttachmentBytes = 20 << 20

// Telegram adapts the transport-neutral Engine to the Telegram Bot API:
// long-polling updates in, messages/keyboard edits out.
type Telegram struct {
	api    *tgbotapi.BotAPI
	engine *Engine
	http   *http.Client
	log    zerolog.Logger
}

// NewTelegram authorizes the bot and wires it to the engine.
func NewTelegram(token string, engine *Engine, log zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("NewTelegram: authorize bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")

	return &Telegram{
		api:    api,
		engine: engine,
		http:   &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}, nil
}

// Run polls for updates until the context is cancelled. Each update is
// processed to completion before the next one for the same chat is read.
func (t *Telegram) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.dispatch(ctx, update)
		}
	}
}

func (t *Telegram) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		t.handleMessage(ctx, update.Message)
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			t.log.Info().
				Int64("chat_id", chatID).
				Str("username", msg.From.UserName).
				Msg("New user")
			t.send(chatID, 0, t.engine.Welcome(msg.From.FirstName))
		case "help":
			t.send(chatID, 0, t.engine.Help())
		case "gasto":
			t.send(chatID, 0, t.engine.StartManual(chatID))
		case "factura":
			t.send(chatID, 0, t.engine.StartInvoice(chatID))
		case "cancelar":
			t.send(chatID, 0, t.engine.Cancel(chatID))
		default:
			t.send(chatID, 0, t.engine.Unknown())
		}
		return
	}

	if att, ok := t.extractAttachment(msg); ok {
		t.send(chatID, 0, t.engine.HandleAttachment(ctx, chatID, att))
		return
	}

	if msg.Text != "" {
		t.send(chatID, 0, t.engine.HandleText(ctx, chatID, msg.Text))
	}
}

func (t *Telegram) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client stops its spinner.
	if _, err := t.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		t.log.Warn().Err(err).Msg("Failed to answer callback query")
	}

	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	reply := t.engine.HandleCallback(ctx, chatID, cq.Data)
	t.send(chatID, cq.Message.MessageID, reply)
}

// extractAttachment maps Telegram photos and documents onto the engine's two
// accepted attachment kinds, downloading the file bytes from Telegram.
func (t *Telegram) extractAttachment(msg *tgbotapi.Message) (Attachment, bool) {
	switch {
	case len(msg.Photo) > 0:
		// Telegram sends multiple sizes; the last one is the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		data, err := t.download(photo.FileID)
		if err != nil {
			t.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to download photo")
			return Attachment{Kind: AttachmentImage}, true
		}
		return Attachment{Kind: AttachmentImage, Data: data, MIMEType: "image/jpeg"}, true

	case msg.Document != nil:
		data, err := t.download(msg.Document.FileID)
		if err != nil {
			t.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to download document")
			return Attachment{Kind: AttachmentDocument}, true
		}
		mime := msg.Document.MimeType
		if mime == "" {
			mime = "application/pdf"
		}
		return Attachment{Kind: AttachmentDocument, Data: data, MIMEType: mime}, true
	}
	return Attachment{}, false
}

func (t *Telegram) download(fileID string) ([]byte, error) {
	url, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("download: resolving file URL: %w", err)
	}

	resp, err := t.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download: fetching file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: file server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("download: reading file bytes: %w", err)
	}
	return data, nil
}

// send delivers a reply, editing the originating prompt when requested and
// a message ID is available.
func (t *Telegram) send(chatID int64, promptMessageID int, reply Reply) {
	if reply.Text == "" {
		return
	}

	markup := keyboardFor(reply.Buttons)

	if reply.EditPrompt && promptMessageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, promptMessageID, reply.Text)
		if markup != nil {
			edit.ReplyMarkup = markup
		}
		if _, err := t.api.Send(edit); err != nil {
			t.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to edit prompt")
		}
		return
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func keyboardFor(buttons [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var btns []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
		}
		rows = append(rows, btns)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
