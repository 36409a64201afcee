// Package remote maps the tracker's records onto a DocumentStore.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/storage"
)

const (
	CollectionCoins = "coins"
	CollectionMeta  = "meta"
	CollectionUsers = "users"

	lastUpdatedID  = "lastUpdated"
	favoritesField = "favorites"
)

// Gateway reads and writes coins, the refresh watermark and favorites.
type Gateway struct {
	store storage.DocumentStore
}

// NewGateway wraps store.
func NewGateway(store storage.DocumentStore) *Gateway {
	return &Gateway{store: store}
}

// FetchResult is the outcome of FetchCoins.
type FetchResult struct {
	Coins   []domain.Coin
	Skipped int // documents that failed to decode
}

var errNotCoin = errors.New("document is not a coin record")

func decodeCoin(doc storage.Document) (domain.Coin, error) {
	var c domain.Coin
	if err := json.Unmarshal(doc.Data, &c); err != nil {
		return domain.Coin{}, err
	}
	if c.ID == "" || c.ID != doc.ID {
		return domain.Coin{}, errNotCoin
	}
	return c, nil
}

// SaveCoin upserts coin under its id.
func (g *Gateway) SaveCoin(ctx context.Context, coin domain.Coin) error {
	if coin.ID == "" {
		return errors.New("save coin: empty id")
	}
	data, err := json.Marshal(coin)
	if err != nil {
		return fmt.Errorf("save coin %s: %w", coin.ID, err)
	}
	return g.store.Set(ctx, CollectionCoins, coin.ID, data)
}

// FetchCoins loads every stored coin, ordered by market cap rank then id.
// Documents that do not decode to a coin stored under its own id are
// skipped and counted.
func (g *Gateway) FetchCoins(ctx context.Context) (FetchResult, error) {
	docs, err := g.store.List(ctx, CollectionCoins)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch coins: %w", err)
	}

	res := FetchResult{Coins: make([]domain.Coin, 0, len(docs))}
	for _, doc := range docs {
		c, err := decodeCoin(doc)
		if err != nil {
			res.Skipped++
			slog.Warn("Skipping undecodable coin document",
				slog.String("id", doc.ID),
				slog.Any("error", err))
			continue
		}
		res.Coins = append(res.Coins, c)
	}

	sort.SliceStable(res.Coins, func(i, j int) bool {
		a, b := res.Coins[i], res.Coins[j]
		if a.MarketCapRank != b.MarketCapRank {
			return a.MarketCapRank < b.MarketCapRank
		}
		return a.ID < b.ID
	})
	return res, nil
}

type lastUpdatedDoc struct {
	Timestamp time.Time `json:"timestamp"`
}

// GetLastUpdated returns the refresh watermark; ok is false when none is
// stored or the stored one is unreadable.
func (g *Gateway) GetLastUpdated(ctx context.Context) (time.Time, bool, error) {
	data, err := g.store.Get(ctx, CollectionMeta, lastUpdatedID)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last updated: %w", err)
	}

	var doc lastUpdatedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("Ignoring unreadable last updated document", slog.Any("error", err))
		return time.Time{}, false, nil
	}
	if doc.Timestamp.IsZero() {
		return time.Time{}, false, nil
	}
	return doc.Timestamp, true, nil
}

// SetLastUpdated stores now as the refresh watermark.
func (g *Gateway) SetLastUpdated(ctx context.Context, now time.Time) error {
	data, err := json.Marshal(lastUpdatedDoc{Timestamp: now.UTC()})
	if err != nil {
		return err
	}
	return g.store.Set(ctx, CollectionMeta, lastUpdatedID, data)
}

type userDoc struct {
	Favorites []string `json:"favorites"`
}

// GetFavorites returns the favorite coin ids of userID.
func (g *Gateway) GetFavorites(ctx context.Context, userID string) ([]string, error) {
	data, err := g.store.Get(ctx, CollectionUsers, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get favorites: %w", err)
	}

	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode favorites: %w", err)
	}
	return doc.Favorites, nil
}

// AddFavorite adds coinID to the user's favorites, at most once.
func (g *Gateway) AddFavorite(ctx context.Context, userID, coinID string) error {
	return g.store.ArrayUnion(ctx, CollectionUsers, userID, favoritesField, coinID)
}

// RemoveFavorite drops coinID from the user's favorites.
func (g *Gateway) RemoveFavorite(ctx context.Context, userID, coinID string) error {
	return g.store.ArrayRemove(ctx, CollectionUsers, userID, favoritesField, coinID)
}
