// Package bot drives the expense capture conversations. The Engine is
// transport-neutral: it consumes text, callback, and attachment events and
// produces replies; the Telegram adapter translates both directions.
package bot

// AttachmentKind distinguishes the two accepted invoice attachment types.
type AttachmentKind string

const (
	// AttachmentImage is a photo of an invoice.
	AttachmentImage AttachmentKind = "image"
	// AttachmentDocument is an invoice file, typically a PDF.
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is an invoice file delivered by the chat transport.
type Attachment struct {
	Kind     AttachmentKind
	Data     []byte
	MIMEType string
}

// Button is one selectable option on a prompt.
type Button struct {
	Label string
	Token string
}

// Reply is what the engine wants shown to the user.
type Reply struct {
	Text    string
	Buttons [][]Button
	// EditPrompt asks the transport to edit the last keyboard prompt in
	// place instead of sending a new message.
	EditPrompt bool
}

// Callback tokens understood by the confirmation and currency prompts.
const (
	tokenConfirm     = "confirmar"
	tokenCancel      = "cancelar"
	tokenCurrencyCOP = "COP"
	tokenCurrencyUSD = "USD"
)
