// Package event fans controller notifications out to observers.
package event

import "time"

// Type defines the type of event.
type Type uint16

const (
	EvCoinsUpdated Type = iota + 1
	EvStatusChanged
	EvFavoritesChanged
	EvRatesUpdated
)

func (t Type) String() string {
	switch t {
	case EvCoinsUpdated:
		return "coins_updated"
	case EvStatusChanged:
		return "status_changed"
	case EvFavoritesChanged:
		return "favorites_changed"
	case EvRatesUpdated:
		return "rates_updated"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON payloads.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event carries a copy of the publisher's state at the time of the change.
type Event[T any] struct {
	Seq   uint64    `json:"seq"`
	Ts    time.Time `json:"ts"`
	Type  Type      `json:"type"`
	State T         `json:"state"`
}
