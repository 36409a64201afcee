package domain

import "time"

// ChartPoint is a single (date, price) sample of a historical series.
type ChartPoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}
