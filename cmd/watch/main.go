// Command watch follows a running tracker's feed and prints every update.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_tracker/internal/engine"
	"crypto_tracker/internal/event"
	"crypto_tracker/internal/feed"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "feed address")
	top := flag.Int("top", 5, "coins to print per update")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("ws://%s/ws", *addr)
	w := feed.NewWatcher(url, func(ev event.Event[engine.State]) {
		printEvent(ev, *top)
	})
	w.Start(ctx)
	defer w.Stop()

	slog.Info("Watching feed", slog.String("url", url))

	status := time.NewTicker(15 * time.Second)
	defer status.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-status.C:
			if !w.Connected() {
				slog.Warn("Feed unreachable, still retrying", slog.String("url", url))
			}
		}
	}
}

func printEvent(ev event.Event[engine.State], top int) {
	st := ev.State
	fmt.Printf("[%s] %s  %s  (%s)\n", ev.Ts.Format("15:04:05"), ev.Type, st.Status, st.SelectedCurrency)
	if ev.Type != event.EvCoinsUpdated {
		return
	}
	for i, c := range st.DisplayedCoins {
		if i >= top {
			break
		}
		star := " "
		if st.IsFavorite(c.ID) {
			star = "*"
		}
		fmt.Printf("  %s %3d %-8s %14.2f %7.2f%%\n", star, c.MarketCapRank, c.Symbol, c.CurrentPrice, c.PriceChangePercentage24h)
	}
}
