package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RateTable maps lowercase ISO currency codes to a multiplier relative to
// BaseCurrency. A table is immutable once built; updates swap whole tables.
type RateTable struct {
	rates map[string]decimal.Decimal
}

// NewRateTable copies rates into a new table, lowercasing every code.
func NewRateTable(rates map[string]decimal.Decimal) *RateTable {
	t := &RateTable{rates: make(map[string]decimal.Decimal, len(rates))}
	for code, v := range rates {
		t.rates[strings.ToLower(code)] = v
	}
	return t
}

// NewRateTableFromFloats is NewRateTable for plain float input (config files).
func NewRateTableFromFloats(rates map[string]float64) *RateTable {
	m := make(map[string]decimal.Decimal, len(rates))
	for code, v := range rates {
		m[code] = decimal.NewFromFloat(v)
	}
	return NewRateTable(m)
}

// Factor returns the conversion factor for currency, 1.0 if unknown.
func (t *RateTable) Factor(currency string) decimal.Decimal {
	if t == nil {
		return decimal.NewFromInt(1)
	}
	if v, ok := t.rates[strings.ToLower(currency)]; ok {
		return v
	}
	return decimal.NewFromInt(1)
}

// Has reports whether the table carries an explicit rate for currency.
func (t *RateTable) Has(currency string) bool {
	if t == nil {
		return false
	}
	_, ok := t.rates[strings.ToLower(currency)]
	return ok
}

// Len returns the number of currencies in the table.
func (t *RateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rates)
}

// Rates returns a copy of the underlying map.
func (t *RateTable) Rates() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, t.Len())
	if t == nil {
		return out
	}
	for k, v := range t.rates {
		out[k] = v
	}
	return out
}

// Rebase re-expresses rates quoted against some reference currency as
// multipliers relative to base, i.e. rate[x] / rate[base].
func Rebase(rates map[string]decimal.Decimal, base string) (map[string]decimal.Decimal, error) {
	base = strings.ToLower(base)
	var baseRate decimal.Decimal
	found := false
	for code, v := range rates {
		if strings.ToLower(code) == base {
			baseRate = v
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("rebase: base currency %q missing", base)
	}
	if baseRate.IsZero() {
		return nil, fmt.Errorf("rebase: base currency %q has zero rate", base)
	}

	out := make(map[string]decimal.Decimal, len(rates))
	for code, v := range rates {
		out[strings.ToLower(code)] = v.DivRound(baseRate, 16)
	}
	out[base] = decimal.NewFromInt(1)
	return out, nil
}
