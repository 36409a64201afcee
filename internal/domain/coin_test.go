package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sampleCoin() Coin {
	return Coin{
		ID:                       "btc",
		Symbol:                   "btc",
		Name:                     "Bitcoin",
		Image:                    "https://example.com/btc.png",
		CurrentPrice:             50000,
		MarketCap:                1_000_000_000,
		MarketCapRank:            1,
		Volume:                   25_000_000,
		High24h:                  51000,
		Low24h:                   49000,
		PriceChange24h:           1000,
		PriceChangePercentage24h: 2.5,
		LastUpdated:              time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
	}
}

func TestCoin_Converted(t *testing.T) {
	t.Run("EUR Example", func(t *testing.T) {
		c := sampleCoin()
		got := c.Converted(decimal.NewFromFloat(0.92))

		if got.CurrentPrice != 46000 {
			t.Errorf("Expected price 46000, got %v", got.CurrentPrice)
		}
		if got.MarketCap != 920_000_000 {
			t.Errorf("Expected market cap 920000000, got %v", got.MarketCap)
		}
		if got.Volume != 23_000_000 {
			t.Errorf("Expected volume 23000000, got %v", got.Volume)
		}
		if got.High24h != 46920 || got.Low24h != 45080 {
			t.Errorf("High/Low mismatch: %v / %v", got.High24h, got.Low24h)
		}
		if got.PriceChange24h != 920 {
			t.Errorf("Expected price change 920, got %v", got.PriceChange24h)
		}
	})

	t.Run("Pass-through Fields", func(t *testing.T) {
		c := sampleCoin()
		got := c.Converted(decimal.NewFromFloat(0.78))

		if got.ID != c.ID || got.Symbol != c.Symbol || got.Name != c.Name || got.Image != c.Image {
			t.Error("Identity fields must not change")
		}
		if got.MarketCapRank != c.MarketCapRank {
			t.Errorf("Rank changed: %d", got.MarketCapRank)
		}
		if got.PriceChangePercentage24h != c.PriceChangePercentage24h {
			t.Errorf("Percentage must not be scaled, got %v", got.PriceChangePercentage24h)
		}
		if !got.LastUpdated.Equal(c.LastUpdated) {
			t.Error("LastUpdated changed")
		}
	})

	t.Run("Original Untouched", func(t *testing.T) {
		c := sampleCoin()
		_ = c.Converted(decimal.NewFromInt(2))
		if c.CurrentPrice != 50000 {
			t.Errorf("Source coin was mutated: %v", c.CurrentPrice)
		}
	})
}

func TestConvertAll_NoCompounding(t *testing.T) {
	original := []Coin{sampleCoin(), {ID: "eth", CurrentPrice: 3000}}
	factor := decimal.NewFromFloat(0.92)

	first := ConvertAll(original, factor)
	second := ConvertAll(original, factor)

	if len(first) != len(original) {
		t.Fatalf("Expected %d coins, got %d", len(original), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Conversion not idempotent at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	if original[1].CurrentPrice != 3000 {
		t.Errorf("Input slice was modified: %v", original[1].CurrentPrice)
	}
	if first[1].CurrentPrice != 2760 {
		t.Errorf("Expected 2760, got %v", first[1].CurrentPrice)
	}
}

func TestNewDetail(t *testing.T) {
	c := sampleCoin()
	factor := decimal.NewFromFloat(0.92)

	t.Run("With Conversion", func(t *testing.T) {
		d := NewDetail(c, true, factor)
		if d.Price != 46000 {
			t.Errorf("Expected 46000, got %v", d.Price)
		}
		if d.High24h != 46920 || d.Low24h != 45080 {
			t.Errorf("High/Low mismatch: %v / %v", d.High24h, d.Low24h)
		}
		if d.PriceChangePercentage24h != 2.5 {
			t.Errorf("Percentage must not be scaled, got %v", d.PriceChangePercentage24h)
		}
	})

	t.Run("Without Conversion", func(t *testing.T) {
		d := NewDetail(c, false, factor)
		if d.Price != c.CurrentPrice || d.MarketCap != c.MarketCap || d.Volume != c.Volume {
			t.Errorf("Values must pass through unchanged: %+v", d)
		}
	})

	t.Run("No Mutation", func(t *testing.T) {
		_ = NewDetail(c, true, factor)
		if c.CurrentPrice != 50000 {
			t.Error("NewDetail mutated the coin")
		}
	})
}
