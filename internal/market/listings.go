package market

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"crypto_tracker/internal/domain"
)

// FetchListings returns current market listings priced in currency.
func (c *Client) FetchListings(ctx context.Context, currency string) ([]domain.Coin, error) {
	q := url.Values{}
	q.Set("vs_currency", strings.ToLower(currency))

	body, err := c.get(ctx, "listings", "/coins/markets", q)
	if err != nil {
		return nil, err
	}

	var coins []domain.Coin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: "listings", Err: err}
	}
	return coins, nil
}
