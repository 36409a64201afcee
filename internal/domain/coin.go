package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency canonical coin data is stored in.
const BaseCurrency = "usd"

// Coin is a market listing entry. Monetary fields are denominated in
// BaseCurrency when stored; converted copies are produced by Converted.
type Coin struct {
	ID                       string    `json:"id"`
	Symbol                   string    `json:"symbol"`
	Name                     string    `json:"name"`
	Image                    string    `json:"image"`
	CurrentPrice             float64   `json:"current_price"`
	MarketCap                float64   `json:"market_cap"`
	MarketCapRank            int       `json:"market_cap_rank"`
	Volume                   float64   `json:"total_volume"`
	High24h                  float64   `json:"high_24h"`
	Low24h                   float64   `json:"low_24h"`
	PriceChange24h           float64   `json:"price_change_24h"`
	PriceChangePercentage24h float64   `json:"price_change_percentage_24h"`
	LastUpdated              time.Time `json:"last_updated"`
}

// Converted returns a copy of c with every monetary field multiplied by factor.
// Rank, percentage change, timestamp and identity fields pass through.
func (c Coin) Converted(factor decimal.Decimal) Coin {
	out := c
	out.CurrentPrice = Scale(c.CurrentPrice, factor)
	out.MarketCap = Scale(c.MarketCap, factor)
	out.Volume = Scale(c.Volume, factor)
	out.High24h = Scale(c.High24h, factor)
	out.Low24h = Scale(c.Low24h, factor)
	out.PriceChange24h = Scale(c.PriceChange24h, factor)
	return out
}

// ConvertAll converts the whole list into a freshly allocated slice.
// The input is never modified.
func ConvertAll(coins []Coin, factor decimal.Decimal) []Coin {
	out := make([]Coin, len(coins))
	for i, c := range coins {
		out[i] = c.Converted(factor)
	}
	return out
}

// Scale multiplies v by factor using decimal arithmetic so that simple
// rates (0.92, 0.78) do not pick up binary rounding noise.
func Scale(v float64, factor decimal.Decimal) float64 {
	if factor.Equal(decimal.NewFromInt(1)) {
		return v
	}
	// NewFromFloat panics on these.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v * factor.InexactFloat64()
	}
	f, _ := decimal.NewFromFloat(v).Mul(factor).Float64()
	return f
}
