// Package engine runs the refresh controller: a single goroutine that owns
// the coin lists and serializes every mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/event"
	"crypto_tracker/internal/infra"
	"crypto_tracker/internal/market"
	"crypto_tracker/internal/remote"
)

// ErrStopped is returned by commands issued after the controller exited.
var ErrStopped = errors.New("engine: controller stopped")

// MarketClient is the market data source.
type MarketClient interface {
	FetchListings(ctx context.Context, currency string) ([]domain.Coin, error)
	FetchChartSeries(ctx context.Context, assetID, currency string) ([]domain.ChartPoint, error)
	FetchExchangeRates(ctx context.Context) (*domain.RateTable, error)
	ConversionFactor(currency string) decimal.Decimal
}

// Store is the remote record store.
type Store interface {
	SaveCoin(ctx context.Context, coin domain.Coin) error
	FetchCoins(ctx context.Context) (remote.FetchResult, error)
	GetLastUpdated(ctx context.Context) (time.Time, bool, error)
	SetLastUpdated(ctx context.Context, now time.Time) error
	GetFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, coinID string) error
	RemoveFavorite(ctx context.Context, userID, coinID string) error
}

// Settings tunes the refresh loop.
type Settings struct {
	RefreshInterval  time.Duration
	ThrottleInterval time.Duration
	RatesInterval    time.Duration
	BackoffMax       time.Duration
	BaseCurrency     string
	DisplayCurrency  string
}

// SettingsFromConfig maps the loaded configuration.
func SettingsFromConfig(cfg *infra.Config) Settings {
	return Settings{
		RefreshInterval:  cfg.RefreshInterval(),
		ThrottleInterval: cfg.ThrottleInterval(),
		RatesInterval:    cfg.RatesInterval(),
		BackoffMax:       time.Duration(cfg.Refresh.BackoffMaxSec) * time.Second,
		BaseCurrency:     cfg.Refresh.BaseCurrency,
		DisplayCurrency:  cfg.Refresh.DisplayCurrency,
	}
}

type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Controller owns the refresh state. All state changes happen on the
// goroutine executing Run.
type Controller struct {
	market   MarketClient
	store    Store
	settings Settings
	backoff  infra.Backoff
	bus      *event.Bus[State]
	now      func() time.Time

	cmds chan command

	// Actor-owned.
	state     State
	favorites map[string]struct{}
	failures  int

	// Guards published for Snapshot.
	mu        sync.RWMutex
	published State

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewController wires a controller. Call Run to start it.
func NewController(mc MarketClient, store Store, settings Settings) *Controller {
	if settings.RefreshInterval <= 0 {
		settings.RefreshInterval = 60 * time.Second
	}
	if settings.BackoffMax < settings.RefreshInterval {
		settings.BackoffMax = settings.RefreshInterval
	}
	settings.BaseCurrency = strings.ToLower(settings.BaseCurrency)
	if settings.BaseCurrency == "" {
		settings.BaseCurrency = domain.BaseCurrency
	}
	settings.DisplayCurrency = strings.ToLower(settings.DisplayCurrency)
	if settings.DisplayCurrency == "" {
		settings.DisplayCurrency = settings.BaseCurrency
	}

	c := &Controller{
		market:    mc,
		store:     store,
		settings:  settings,
		backoff:   infra.Backoff{Base: settings.RefreshInterval, Max: settings.BackoffMax},
		bus:       event.NewBus[State](),
		now:       time.Now,
		cmds:      make(chan command),
		favorites: make(map[string]struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.state.SelectedCurrency = settings.DisplayCurrency
	c.state.Status = StatusLoading
	c.published = c.state.clone()
	return c
}

// Subscribe returns a channel of state changes.
func (c *Controller) Subscribe(buffer int) *event.Subscription[State] {
	return c.bus.Subscribe(buffer)
}

// Snapshot returns a copy of the latest published state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published.clone()
}

// Run processes commands and timers until ctx is canceled or Stop is called.
// It must be called once.
func (c *Controller) Run(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		slog.Warn("Controller already running")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer close(c.done)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("Refresh controller started",
		slog.Duration("interval", c.settings.RefreshInterval),
		slog.Duration("throttle", c.settings.ThrottleInterval))

	c.publish(event.EvStatusChanged)
	c.updateRates(ctx)
	c.refresh(ctx)

	refreshTimer := time.NewTimer(c.nextDelay())
	defer refreshTimer.Stop()

	var ratesC <-chan time.Time
	if c.settings.RatesInterval > 0 {
		ratesTicker := time.NewTicker(c.settings.RatesInterval)
		defer ratesTicker.Stop()
		ratesC = ratesTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Refresh controller stopping...")
			return
		case cmd := <-c.cmds:
			cmd.fn(ctx)
			close(cmd.done)
		case <-refreshTimer.C:
			c.refresh(ctx)
			refreshTimer.Reset(c.nextDelay())
		case <-ratesC:
			c.updateRates(ctx)
		}
	}
}

// Stop cancels Run and waits for it to return.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started.Load() {
		<-c.done
	}
}

// do runs fn on the actor and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func(ctx context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrStopped
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-cmd.done:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Refresh runs one refresh cycle now.
func (c *Controller) Refresh(ctx context.Context) error {
	var err error
	if derr := c.do(ctx, func(ctx context.Context) { err = c.refresh(ctx) }); derr != nil {
		return derr
	}
	return err
}

// SetCurrency selects the display currency and reconverts without refetching.
func (c *Controller) SetCurrency(ctx context.Context, currency string) error {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return errors.New("engine: empty currency code")
	}
	return c.do(ctx, func(context.Context) {
		c.state.SelectedCurrency = currency
		c.recompute()
		c.publish(event.EvCoinsUpdated)
	})
}

// LoadFavorites replaces the local favorites with the user's remote set.
func (c *Controller) LoadFavorites(ctx context.Context, userID string) error {
	var err error
	derr := c.do(ctx, func(ctx context.Context) {
		var favs []string
		favs, err = c.store.GetFavorites(ctx, userID)
		if err != nil {
			slog.Warn("Failed to load favorites", slog.String("user", userID), slog.Any("error", err))
			return
		}
		c.favorites = make(map[string]struct{}, len(favs))
		for _, id := range favs {
			c.favorites[id] = struct{}{}
		}
		c.syncFavorites()
		c.publish(event.EvFavoritesChanged)
	})
	if derr != nil {
		return derr
	}
	return err
}

// ToggleFavorite flips coinID in the user's favorites and reports whether
// it is now a favorite. The local set changes even when the remote write
// fails; failures are counted in State.FavoriteFailures.
func (c *Controller) ToggleFavorite(ctx context.Context, userID, coinID string) (bool, error) {
	var now bool
	err := c.do(ctx, func(ctx context.Context) {
		var werr error
		if _, ok := c.favorites[coinID]; ok {
			delete(c.favorites, coinID)
			werr = c.store.RemoveFavorite(ctx, userID, coinID)
		} else {
			c.favorites[coinID] = struct{}{}
			now = true
			werr = c.store.AddFavorite(ctx, userID, coinID)
		}
		if werr != nil {
			c.state.FavoriteFailures++
			slog.Warn("Favorite write failed",
				slog.String("user", userID),
				slog.String("coin", coinID),
				slog.Any("error", werr))
		}
		c.syncFavorites()
		c.publish(event.EvFavoritesChanged)
	})
	return now, err
}

// Chart returns the history of assetID in currency. It does not touch
// controller state and is not serialized.
func (c *Controller) Chart(ctx context.Context, assetID, currency string) ([]domain.ChartPoint, error) {
	if currency == "" {
		currency = c.Snapshot().SelectedCurrency
	}
	return c.market.FetchChartSeries(ctx, assetID, currency)
}

// refresh runs one cycle. On failure the previous coin lists are kept.
func (c *Controller) refresh(ctx context.Context) error {
	err := c.load(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down.
		return err
	}
	if err != nil {
		c.failures++
		c.setStatus(statusErrorPrefix + market.UserMessage(err))
		slog.Error("Refresh failed",
			slog.Int("consecutive_failures", c.failures),
			slog.Any("error", err))
		return err
	}
	c.failures = 0
	return nil
}

func (c *Controller) load(ctx context.Context) error {
	now := c.now()

	watermark, ok, err := c.store.GetLastUpdated(ctx)
	if err != nil {
		return err
	}

	if ok && now.Sub(watermark) < c.settings.ThrottleInterval {
		res, err := c.store.FetchCoins(ctx)
		if err != nil {
			return err
		}
		c.state.OriginalCoins = res.Coins
		c.state.SkippedDocuments = res.Skipped
		c.state.LastFetchedAt = watermark
		c.recompute()
		c.state.Status = StatusLoadedRemote
		c.publish(event.EvCoinsUpdated)
		return nil
	}

	c.setStatus(StatusLoadingFresh)

	coins, err := c.market.FetchListings(ctx, c.settings.BaseCurrency)
	if err != nil {
		return err
	}
	for _, coin := range coins {
		if err := c.store.SaveCoin(ctx, coin); err != nil {
			return fmt.Errorf("save coin %s: %w", coin.ID, err)
		}
	}
	if err := c.store.SetLastUpdated(ctx, now); err != nil {
		return fmt.Errorf("set last updated: %w", err)
	}

	c.state.OriginalCoins = coins
	c.state.SkippedDocuments = 0
	c.state.LastFetchedAt = now
	c.recompute()
	c.state.Status = StatusUpdated
	c.publish(event.EvCoinsUpdated)

	slog.Info("Listings refreshed", slog.Int("coins", len(coins)))
	return nil
}

func (c *Controller) updateRates(ctx context.Context) {
	table, err := c.market.FetchExchangeRates(ctx)
	if err != nil {
		slog.Warn("Exchange rate update failed", slog.Any("error", err))
		c.setStatus(statusErrorPrefix + market.UserMessage(err))
		return
	}
	if cur := c.state.SelectedCurrency; cur != c.settings.BaseCurrency && !table.Has(cur) {
		slog.Warn("No rate for display currency, showing base prices", slog.String("currency", cur))
	}
	c.recompute()
	c.publish(event.EvRatesUpdated)
}

// recompute rebuilds DisplayedCoins from OriginalCoins in one step.
func (c *Controller) recompute() {
	factor := decimal.NewFromInt(1)
	if c.state.SelectedCurrency != c.settings.BaseCurrency {
		factor = c.market.ConversionFactor(c.state.SelectedCurrency)
	}
	c.state.DisplayedCoins = domain.ConvertAll(c.state.OriginalCoins, factor)
}

func (c *Controller) syncFavorites() {
	ids := make([]string, 0, len(c.favorites))
	for id := range c.favorites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.state.Favorites = ids
}

func (c *Controller) setStatus(status string) {
	c.state.Status = status
	c.publish(event.EvStatusChanged)
}

func (c *Controller) publish(typ event.Type) {
	snap := c.state.clone()
	c.mu.Lock()
	c.published = snap
	c.mu.Unlock()
	c.bus.Publish(typ, snap.clone())
}

// nextDelay is the wait before the next timed cycle.
func (c *Controller) nextDelay() time.Duration {
	if c.failures == 0 {
		return c.settings.RefreshInterval
	}
	return c.backoff.Delay(c.failures)
}
