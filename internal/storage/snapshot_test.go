package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChartKey(t *testing.T) {
	if got := ChartKey("bitcoin", "EUR", 365); got != "bitcoin_eur_365" {
		t.Errorf("Expected bitcoin_eur_365, got %s", got)
	}
}

func TestSnapshotCache_SaveAndLoad(t *testing.T) {
	cache := NewSnapshotCache(filepath.Join(t.TempDir(), "charts"))

	if _, ok := cache.Load("bitcoin_usd_365"); ok {
		t.Fatal("Expected miss on empty cache")
	}

	cache.Save("bitcoin_usd_365", []byte(`{"prices":[[1,2]]}`))
	cache.Save("bitcoin_usd_365", []byte(`{"prices":[[3,4]]}`))

	got, ok := cache.Load("bitcoin_usd_365")
	if !ok {
		t.Fatal("Expected hit after save")
	}
	if string(got) != `{"prices":[[3,4]]}` {
		t.Errorf("Expected latest payload, got %s", got)
	}

	if _, ok := cache.Load("bitcoin_eur_365"); ok {
		t.Error("Keys must not collide across currencies")
	}
}

func TestSnapshotCache_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// A regular file where the directory should be: Save must not panic.
	cache := NewSnapshotCache(filepath.Join(blocker, "charts"))
	cache.Save("k", []byte("v"))
	if _, ok := cache.Load("k"); ok {
		t.Error("Expected miss when save could not write")
	}
}

func TestSnapshotCache_KeyStaysInDir(t *testing.T) {
	dir := t.TempDir()
	cache := NewSnapshotCache(dir)
	cache.Save("../escape", []byte("v"))

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Error("Key escaped the cache directory")
	}
	if _, ok := cache.Load("../escape"); !ok {
		t.Error("Expected hit for sanitized key")
	}
}

func TestSnapshotCache_DistinctKeysDistinctFiles(t *testing.T) {
	cache := NewSnapshotCache(t.TempDir())
	keys := []string{"a/b_usd_365", "a_b_usd_365", `a\b_usd_365`, "a%2Fb_usd_365"}
	for _, k := range keys {
		cache.Save(k, []byte(k))
	}
	for _, k := range keys {
		got, ok := cache.Load(k)
		if !ok || string(got) != k {
			t.Errorf("Key %q: expected own payload, got %q ok=%v", k, got, ok)
		}
	}
}
