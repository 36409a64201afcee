package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/engine"
	"crypto_tracker/internal/feed"
	"crypto_tracker/internal/infra"
	"crypto_tracker/internal/market"
	"crypto_tracker/internal/remote"
	"crypto_tracker/internal/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	WorkDir    string
	Store      storage.DocumentStore
	Cache      *storage.SnapshotCache
	Market     *market.Client
	Gateway    *remote.Gateway
	Controller *engine.Controller
	Feed       *feed.Server

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config from the default location and wires every component.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	return b.InitializeWith(ctx, cfg, infra.GetWorkspaceDir())
}

// InitializeWith wires every component from cfg under workDir.
func (b *Bootstrap) InitializeWith(ctx context.Context, cfg *infra.Config, workDir string) error {
	b.Config = cfg
	b.WorkDir = workDir

	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping Crypto Tracker...", slog.String("workspace", workDir))

	// 1. Directories
	cacheDir := infra.ChartCacheDir(cfg, workDir)
	for _, dir := range []string{workDir, cacheDir} {
		if err := infra.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}

	// 2. Single instance per workspace
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	// 3. Remote store
	store, err := openStore(ctx, cfg, workDir)
	if err != nil {
		b.Close()
		return err
	}
	b.Store = store
	b.Gateway = remote.NewGateway(store)
	slog.Info("✅ Document store ready", slog.String("driver", cfg.Store.Driver))

	// 4. Market client with chart cache
	b.Cache = storage.NewSnapshotCache(cacheDir)
	b.Market = market.NewClient(market.Options{
		BaseURL:           cfg.API.CoinGecko.BaseURL,
		APIKey:            cfg.API.CoinGecko.APIKey,
		Timeout:           time.Duration(cfg.API.CoinGecko.TimeoutSec) * time.Second,
		RequestsPerMinute: cfg.API.CoinGecko.RequestsPerMinute,
		ChartDays:         cfg.API.CoinGecko.ChartDays,
		BaseCurrency:      cfg.Refresh.BaseCurrency,
		Cache:             b.Cache,
		InitialRates:      domain.NewRateTableFromFloats(cfg.Rates),
	})
	slog.Info("✅ Market client ready", slog.String("base_url", cfg.API.CoinGecko.BaseURL))

	// 5. Controller and optional feed
	b.Controller = engine.NewController(b.Market, b.Gateway, engine.SettingsFromConfig(cfg))
	if cfg.Feed.Enabled {
		b.Feed = feed.NewServer(cfg.Feed.Addr, cfg.User.ID, b.Controller)
	}

	return nil
}

func openStore(ctx context.Context, cfg *infra.Config, workDir string) (storage.DocumentStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		r := cfg.Store.Redis
		return storage.NewRedisStore(ctx, r.Addr, r.Password, r.DB)
	default:
		path := infra.SQLitePath(cfg, workDir)
		if err := infra.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return storage.NewSQLiteStore(path)
	}
}

// PrefetchCharts warms the chart cache for the user's favorites so charts
// still render when the market API is throttled.
func (b *Bootstrap) PrefetchCharts(ctx context.Context) {
	userID := b.Config.User.ID
	if userID == "" {
		return
	}

	favs, err := b.Gateway.GetFavorites(ctx, userID)
	if err != nil {
		slog.Warn("Chart prefetch skipped", slog.Any("error", err))
		return
	}
	if len(favs) == 0 {
		return
	}

	slog.Info("🔄 Prefetching charts...", slog.Int("coins", len(favs)))
	currency := b.Config.Refresh.DisplayCurrency

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 3)

	for _, id := range favs {
		wg.Add(1)
		go func(coinID string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			points, err := b.Market.FetchChartSeries(ctx, coinID, currency)
			if err != nil {
				slog.Warn("Chart prefetch failed", slog.String("coin", coinID), slog.Any("error", err))
				return
			}
			slog.Debug("Chart prefetched", slog.String("coin", coinID), slog.Int("points", len(points)))
		}(id)
	}

	wg.Wait()
	slog.Info("✨ Chart prefetch completed")
}

// Close releases the store and the instance lock.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			errs = append(errs, err)
		}
		b.Store = nil
	}
	if b.unlock != nil {
		b.unlock()
		b.unlock = nil
	}
	return errors.Join(errs...)
}
