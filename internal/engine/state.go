package engine

import (
	"time"

	"crypto_tracker/internal/domain"
)

// Status lines shown to the user.
const (
	StatusLoading      = "Loading…"
	StatusLoadedRemote = "Loaded from remote store."
	StatusLoadingFresh = "Loading new data…"
	StatusUpdated      = "Data updated."
	statusErrorPrefix  = "Error: "
)

// State is the controller's published view. Values handed out are copies.
type State struct {
	OriginalCoins    []domain.Coin `json:"original_coins"`
	DisplayedCoins   []domain.Coin `json:"displayed_coins"`
	SelectedCurrency string        `json:"selected_currency"`
	Status           string        `json:"status"`
	LastFetchedAt    time.Time     `json:"last_fetched_at"`
	Favorites        []string      `json:"favorites"`

	// SkippedDocuments counts coin documents dropped by the last remote read.
	SkippedDocuments int `json:"skipped_documents"`
	// FavoriteFailures counts favorite writes that failed remotely.
	FavoriteFailures int `json:"favorite_failures"`
}

func (s State) clone() State {
	out := s
	out.OriginalCoins = append([]domain.Coin(nil), s.OriginalCoins...)
	out.DisplayedCoins = append([]domain.Coin(nil), s.DisplayedCoins...)
	out.Favorites = append([]string(nil), s.Favorites...)
	return out
}

// IsFavorite reports whether coinID is in Favorites.
func (s State) IsFavorite(coinID string) bool {
	for _, id := range s.Favorites {
		if id == coinID {
			return true
		}
	}
	return false
}
