package domain

import "github.com/shopspring/decimal"

// Detail holds the per-coin values shown on a detail screen.
type Detail struct {
	Coin                     Coin    `json:"coin"`
	Price                    float64 `json:"price"`
	MarketCap                float64 `json:"market_cap"`
	Volume                   float64 `json:"volume"`
	High24h                  float64 `json:"high_24h"`
	Low24h                   float64 `json:"low_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

// NewDetail derives display values for coin. When applyConversion is false
// the stored values are shown as-is. The percentage change is never scaled.
func NewDetail(coin Coin, applyConversion bool, factor decimal.Decimal) Detail {
	d := Detail{
		Coin:                     coin,
		Price:                    coin.CurrentPrice,
		MarketCap:                coin.MarketCap,
		Volume:                   coin.Volume,
		High24h:                  coin.High24h,
		Low24h:                   coin.Low24h,
		PriceChangePercentage24h: coin.PriceChangePercentage24h,
	}
	if !applyConversion {
		return d
	}

	d.Price = Scale(coin.CurrentPrice, factor)
	d.MarketCap = Scale(coin.MarketCap, factor)
	d.Volume = Scale(coin.Volume, factor)
	d.High24h = Scale(coin.High24h, factor)
	d.Low24h = Scale(coin.Low24h, factor)
	return d
}
