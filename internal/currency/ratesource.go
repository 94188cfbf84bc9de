package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/domain"
)

const defaultRateAPIURL = "https://api.freecurrencyapi.com/v1/latest"

// FreeCurrencyAPI fetches exchange rates from freecurrencyapi.com.
type FreeCurrencyAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewFreeCurrencyAPI creates a rate source with a sane request timeout.
func NewFreeCurrencyAPI(apiKey string) *FreeCurrencyAPI {
	return &FreeCurrencyAPI{
		apiKey:  apiKey,
		baseURL: defaultRateAPIURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewFreeCurrencyAPIWithURL creates a rate source against a custom endpoint.
func NewFreeCurrencyAPIWithURL(apiKey, baseURL string) *FreeCurrencyAPI {
	s := NewFreeCurrencyAPI(apiKey)
	s.baseURL = baseURL
	return s
}

type rateResponse struct {
	Data map[string]float64 `json:"data"`
}

// CurrentRate implements RateSource.
func (s *FreeCurrencyAPI) CurrentRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if s.apiKey == "" {
		return decimal.Zero, fmt.Errorf("CurrentRate: no API key configured")
	}

	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("base_currency", string(from))
	params.Set("currencies", string(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CurrentRate: building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CurrentRate: calling rate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("CurrentRate: rate API returned status %d", resp.StatusCode)
	}

	var parsed rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("CurrentRate: decoding response: %w", err)
	}

	rate, ok := parsed.Data[string(to)]
	if !ok || rate <= 0 {
		return decimal.Zero, fmt.Errorf("CurrentRate: rate %s->%s not available", from, to)
	}

	return decimal.NewFromFloat(rate), nil
}
