package market

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"crypto_tracker/internal/domain"
)

type ratesResponse struct {
	Rates map[string]struct {
		Value decimal.Decimal `json:"value"`
	} `json:"rates"`
}

// FetchExchangeRates downloads the rates table and swaps it in atomically.
// The API quotes against BTC; rates are rebased onto the base currency
// before the swap so that Factor is a direct lookup.
func (c *Client) FetchExchangeRates(ctx context.Context) (*domain.RateTable, error) {
	body, err := c.get(ctx, "rates", "/exchange_rates", nil)
	if err != nil {
		return nil, err
	}

	var resp ratesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: "rates", Err: err}
	}

	raw := make(map[string]decimal.Decimal, len(resp.Rates))
	for code, r := range resp.Rates {
		raw[code] = r.Value
	}

	rebased, err := domain.Rebase(raw, c.baseCurrency)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: "rates", Err: err}
	}

	table := domain.NewRateTable(rebased)
	c.rates.Store(table)

	slog.Info("Exchange rates updated", slog.Int("currencies", table.Len()))
	return table, nil
}

// Rates returns the current rate table. It is never nil.
func (c *Client) Rates() *domain.RateTable {
	return c.rates.Load()
}

// ConversionFactor returns the multiplier from the base currency to currency.
func (c *Client) ConversionFactor(currency string) decimal.Decimal {
	return c.rates.Load().Factor(currency)
}
