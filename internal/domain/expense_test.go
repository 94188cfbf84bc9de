package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Tech", "Tech"},
		{"tech", "Tech"},
		{"  WORKSPACE  ", "Workspace"},
		{"suscripciones", "Suscripciones"},
		{"Comida", "Otros"},
		{"", "Otros"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeCategory(tt.input); got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsCategory(t *testing.T) {
	if !IsCategory("legal") {
		t.Error("IsCategory(legal) = false, want true")
	}
	if IsCategory("Comida") {
		t.Error("IsCategory(Comida) = true, want false")
	}
}

func TestExpenseRecord_SourceAmount(t *testing.T) {
	rec := ExpenseRecord{
		AmountCOP:      decimal.NewFromInt(102000),
		AmountUSD:      decimal.RequireFromString("25.50"),
		SourceCurrency: CurrencyUSD,
	}
	if !rec.SourceAmount().Equal(rec.AmountUSD) {
		t.Errorf("SourceAmount() = %s, want USD amount", rec.SourceAmount())
	}

	rec.SourceCurrency = CurrencyCOP
	if !rec.SourceAmount().Equal(rec.AmountCOP) {
		t.Errorf("SourceAmount() = %s, want COP amount", rec.SourceAmount())
	}
}
