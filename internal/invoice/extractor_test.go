package invoice

import (
	"strings"
	"testing"

	"github.com/dvloznov/expense-bot/internal/domain"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object untouched",
			input: `{"monto": 25.5}`,
			want:  `{"monto": 25.5}`,
		},
		{
			name:  "json fence stripped",
			input: "```json\n{\"monto\": 25.5}\n```",
			want:  `{"monto": 25.5}`,
		},
		{
			name:  "plain fence stripped",
			input: "```\n{\"monto\": 25.5}\n```",
			want:  `{"monto": 25.5}`,
		},
		{
			name:  "surrounding prose dropped",
			input: "Here is the JSON you asked for:\n{\"monto\": 25.5}\nHope this helps!",
			want:  `{"monto": 25.5}`,
		},
		{
			name:  "whitespace trimmed",
			input: "  \n{\"monto\": 25.5}\n  ",
			want:  `{"monto": 25.5}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.input); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildFieldsPrompt(t *testing.T) {
	prompt := buildFieldsPrompt("ACME Hosting\nTotal: 25.50 USD")

	if !strings.Contains(prompt, "ACME Hosting") {
		t.Error("prompt does not embed the invoice text")
	}
	for _, field := range []string{"fecha", "detalle", "monto", "moneda", "categoria"} {
		if !strings.Contains(prompt, field) {
			t.Errorf("prompt missing field %q", field)
		}
	}
	for _, cat := range domain.Categories {
		if !strings.Contains(prompt, cat) {
			t.Errorf("prompt missing category %q", cat)
		}
	}
}
