package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// TextExtractor obtains plain text from an invoice attachment. An empty
// result means extraction failed.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// FieldExtractor obtains a loosely structured field set from invoice text.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (map[string]interface{}, error)
}

// GeminiExtractor implements both extraction collaborators with Gemini:
// vision for text transcription and a strict-JSON prompt for field extraction.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiExtractor creates a Gemini-backed extractor.
func NewGeminiExtractor(ctx context.Context, apiKey, model string, log zerolog.Logger) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	return &GeminiExtractor{client: client, model: model, log: log}, nil
}

// ExtractText transcribes the attachment (image or PDF) into plain text.
func (g *GeminiExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	prompt := "Transcribe ALL text visible in the attached invoice document.\n" +
		"Output the raw text only, preserving line breaks.\n" +
		"Do not summarize, translate, or add commentary."

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("ExtractText: generate content: %w", err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

// ExtractFields asks the model for a strict JSON object with the invoice
// fields and parses it into a generic map for the validator.
func (g *GeminiExtractor) ExtractFields(ctx context.Context, text string) (map[string]interface{}, error) {
	prompt := buildFieldsPrompt(text)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("ExtractFields: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("ExtractFields: empty response from model")
	}

	// Clean up Markdown fences / extra text if the model ignored instructions.
	clean := cleanModelJSON(rawText)

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return nil, fmt.Errorf("ExtractFields: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	return fields, nil
}

func buildFieldsPrompt(text string) string {
	var b strings.Builder

	b.WriteString("You are an invoice parser for a small business expense tracker.\n\n")
	b.WriteString("Analyze the following invoice text and extract:\n")
	b.WriteString("1. \"fecha\": the invoice date in DD/MM/YYYY format, or null if absent\n")
	b.WriteString("2. \"detalle\": a short description of the product or service\n")
	b.WriteString("3. \"monto\": the total amount as a plain number, no currency symbols\n")
	b.WriteString("4. \"moneda\": \"USD\" or \"COP\". If unclear, guess from the magnitude:\n")
	b.WriteString("   amounts like 100,000+ are usually COP, amounts like 10-100 are usually USD\n")
	b.WriteString("5. \"categoria\": exactly one of: ")
	b.WriteString(strings.Join(domain.Categories, ", "))
	b.WriteString("\n\nInvoice text:\n```\n")
	b.WriteString(text)
	b.WriteString("\n```\n\n")
	b.WriteString("Return ONLY a valid raw JSON object with those five fields.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")

	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk from a model
// response that should have been a bare JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Extra safety: keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
