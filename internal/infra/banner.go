package infra

import (
	"fmt"
	"io"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner writes the startup banner with the active store backend.
func PrintBanner(w io.Writer, cfg *Config) {
	store := strings.ToUpper(cfg.Store.Driver)

	color := ColorGreen
	storeDesc := "LOCAL SQLITE"
	if cfg.Store.Driver == "redis" {
		color = ColorCyan
		storeDesc = "REDIS " + cfg.Store.Redis.Addr
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#               Crypto Tracker                            #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#   STORE:    %-35s #%s\n", color, store, ColorReset)
	fmt.Fprintf(w, "%s#   BACKEND:  %-35s #%s\n", color, storeDesc, ColorReset)
	fmt.Fprintf(w, "%s#   CURRENCY: %-35s #%s\n", color, strings.ToUpper(cfg.Refresh.DisplayCurrency), ColorReset)
	fmt.Fprintf(w, "%s#   VERSION:  %-35s #%s\n", color, cfg.App.Version, ColorReset)
	if cfg.API.CoinGecko.APIKey == "" {
		fmt.Fprintf(w, "%s#   No API key set: public rate limits apply              #%s\n", ColorYellow, ColorReset)
	}
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintln(w)
}
