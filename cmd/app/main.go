package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_tracker/internal/app"
	"crypto_tracker/internal/engine"
	"crypto_tracker/internal/event"
	"crypto_tracker/internal/infra"
)

func main() {
	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	infra.PrintBanner(os.Stdout, cfg)

	// 3. Refresh controller (single actor)
	ctrl := bootstrap.Controller
	go ctrl.Run(ctx)
	defer ctrl.Stop()
	slog.InfoContext(ctx, "✅ Refresh controller started")

	if cfg.User.ID != "" {
		go func() {
			if err := ctrl.LoadFavorites(ctx, cfg.User.ID); err != nil {
				slog.Warn("Favorites unavailable", slog.Any("error", err))
			}
		}()
		go bootstrap.PrefetchCharts(ctx)
	}

	// 4. Status log for headless runs
	sub := ctrl.Subscribe(event.DefaultBuffer)
	defer sub.Unsubscribe()
	go logEvents(ctx, sub)

	// 5. Optional feed for a UI process
	if bootstrap.Feed != nil {
		go func() {
			if err := bootstrap.Feed.ListenAndServe(); err != nil {
				slog.Error("Feed server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := bootstrap.Feed.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Feed shutdown incomplete", slog.Any("error", err))
			}
		}()
	}

	slog.InfoContext(ctx, "✨ Crypto Tracker running. Press Ctrl+C to exit.")

	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
}

func logEvents(ctx context.Context, sub *event.Subscription[engine.State]) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			switch ev.Type {
			case event.EvStatusChanged:
				slog.Info("Status", slog.String("status", ev.State.Status))
			case event.EvCoinsUpdated:
				slog.Info("Coins updated",
					slog.Int("coins", len(ev.State.DisplayedCoins)),
					slog.String("currency", ev.State.SelectedCurrency),
					slog.Int("skipped", ev.State.SkippedDocuments))
			}
		}
	}
}
