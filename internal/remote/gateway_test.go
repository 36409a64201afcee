package remote

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/storage"
)

func newGateway(t *testing.T) (*Gateway, storage.DocumentStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewGateway(store), store
}

func TestGateway_SaveAndFetchCoins(t *testing.T) {
	g, store := newGateway(t)
	ctx := context.Background()

	coins := []domain.Coin{
		{ID: "ethereum", Symbol: "eth", MarketCapRank: 2, CurrentPrice: 3000},
		{ID: "bitcoin", Symbol: "btc", MarketCapRank: 1, CurrentPrice: 50000},
		{ID: "tether", Symbol: "usdt", MarketCapRank: 2, CurrentPrice: 1},
	}
	for _, c := range coins {
		if err := g.SaveCoin(ctx, c); err != nil {
			t.Fatalf("SaveCoin failed: %v", err)
		}
	}
	// A corrupt document is skipped, not fatal.
	if err := store.Set(ctx, CollectionCoins, "broken", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	// So are documents that are not coin records of their own id.
	if err := store.Set(ctx, CollectionCoins, "junk", []byte(`{"unrelated":true}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, CollectionCoins, "solana", []byte(`{"id":"cardano","market_cap_rank":5}`)); err != nil {
		t.Fatal(err)
	}

	res, err := g.FetchCoins(ctx)
	if err != nil {
		t.Fatalf("FetchCoins failed: %v", err)
	}
	if res.Skipped != 3 {
		t.Errorf("Expected 3 skipped, got %d", res.Skipped)
	}

	want := []string{"bitcoin", "ethereum", "tether"}
	if len(res.Coins) != len(want) {
		t.Fatalf("Expected %d coins, got %d", len(want), len(res.Coins))
	}
	for i, id := range want {
		if res.Coins[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, res.Coins[i].ID)
		}
	}
	if res.Coins[0].CurrentPrice != 50000 {
		t.Errorf("Price mismatch: %v", res.Coins[0].CurrentPrice)
	}
}

func TestGateway_SaveCoinEmptyID(t *testing.T) {
	g, _ := newGateway(t)
	if err := g.SaveCoin(context.Background(), domain.Coin{}); err == nil {
		t.Error("Expected error for empty id")
	}
}

func TestGateway_LastUpdated(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	_, ok, err := g.GetLastUpdated(ctx)
	if err != nil || ok {
		t.Fatalf("Expected absent watermark, got ok=%v err=%v", ok, err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)
	if err := g.SetLastUpdated(ctx, now); err != nil {
		t.Fatalf("SetLastUpdated failed: %v", err)
	}

	got, ok, err := g.GetLastUpdated(ctx)
	if err != nil || !ok {
		t.Fatalf("Expected watermark, got ok=%v err=%v", ok, err)
	}
	if !got.Equal(now) {
		t.Errorf("Expected %v, got %v", now, got)
	}
}

func TestGateway_UnreadableLastUpdated(t *testing.T) {
	g, store := newGateway(t)
	ctx := context.Background()

	if err := store.Set(ctx, CollectionMeta, lastUpdatedID, []byte(`{"timestamp":12345}`)); err != nil {
		t.Fatal(err)
	}
	_, ok, err := g.GetLastUpdated(ctx)
	if err != nil || ok {
		t.Fatalf("Expected unreadable watermark treated as absent, got ok=%v err=%v", ok, err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := g.SetLastUpdated(ctx, now); err != nil {
		t.Fatalf("SetLastUpdated failed: %v", err)
	}
	got, ok, err := g.GetLastUpdated(ctx)
	if err != nil || !ok || !got.Equal(now) {
		t.Errorf("Expected %v after overwrite, got %v ok=%v err=%v", now, got, ok, err)
	}
}

func TestGateway_FavoritesUnion(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.AddFavorite(ctx, "u1", "btc"); err != nil {
			t.Fatalf("AddFavorite failed: %v", err)
		}
	}

	favs, err := g.GetFavorites(ctx, "u1")
	if err != nil {
		t.Fatalf("GetFavorites failed: %v", err)
	}
	count := 0
	for _, f := range favs {
		if f == "btc" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected btc exactly once, got %v", favs)
	}

	if err := g.RemoveFavorite(ctx, "u1", "btc"); err != nil {
		t.Fatalf("RemoveFavorite failed: %v", err)
	}
	favs, _ = g.GetFavorites(ctx, "u1")
	if len(favs) != 0 {
		t.Errorf("Expected no favorites, got %v", favs)
	}
}

func TestGateway_FavoritesUnknownUser(t *testing.T) {
	g, _ := newGateway(t)
	favs, err := g.GetFavorites(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetFavorites failed: %v", err)
	}
	if len(favs) != 0 {
		t.Errorf("Expected empty favorites, got %v", favs)
	}
}
