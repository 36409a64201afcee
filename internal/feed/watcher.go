package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crypto_tracker/internal/engine"
	"crypto_tracker/internal/event"
	"crypto_tracker/internal/infra"
)

// Watcher follows a feed's /ws endpoint and reconnects with backoff when
// the connection drops.
type Watcher struct {
	url     string
	onEvent func(event.Event[engine.State])

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ReadTimeout time.Duration
	Backoff     infra.Backoff
}

// NewWatcher creates a watcher for url (ws://host/ws).
func NewWatcher(url string, onEvent func(event.Event[engine.State])) *Watcher {
	return &Watcher{
		url:         url,
		onEvent:     onEvent,
		ReadTimeout: pongWait,
		Backoff:     infra.Backoff{Base: time.Second, Max: 30 * time.Second},
	}
}

// Start initiates the connection loop.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

// Connected reports whether a connection is currently open.
func (w *Watcher) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil
}

func (w *Watcher) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			delay := w.Backoff.Delay(retry)
			slog.Warn("Feed connection failed",
				slog.String("url", w.url),
				slog.Int("retry", retry),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.process(ctx)
	}
}

func (w *Watcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return err
	}

	readTimeout := w.ReadTimeout
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	slog.Info("Feed connected", slog.String("url", w.url))
	return nil
}

func (w *Watcher) process(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("Feed read error", slog.Any("error", err))
			}
			w.close()
			return
		}

		ev, err := decodeEvent(msg)
		if err != nil {
			slog.Warn("Skipping undecodable feed message", slog.Any("error", err))
			continue
		}
		if w.onEvent != nil {
			w.onEvent(ev)
		}
	}
}

type wireEvent struct {
	Seq   uint64       `json:"seq"`
	Ts    time.Time    `json:"ts"`
	Type  string       `json:"type"`
	State engine.State `json:"state"`
}

var typesByName = map[string]event.Type{
	event.EvCoinsUpdated.String():     event.EvCoinsUpdated,
	event.EvStatusChanged.String():    event.EvStatusChanged,
	event.EvFavoritesChanged.String(): event.EvFavoritesChanged,
	event.EvRatesUpdated.String():     event.EvRatesUpdated,
}

func decodeEvent(msg []byte) (event.Event[engine.State], error) {
	var wire wireEvent
	if err := json.Unmarshal(msg, &wire); err != nil {
		return event.Event[engine.State]{}, err
	}
	typ, ok := typesByName[wire.Type]
	if !ok {
		return event.Event[engine.State]{}, fmt.Errorf("unknown event type %q", wire.Type)
	}
	return event.Event[engine.State]{Seq: wire.Seq, Ts: wire.Ts, Type: typ, State: wire.State}, nil
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
