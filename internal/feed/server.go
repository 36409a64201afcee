// Package feed exposes the controller to a UI process over local HTTP and
// a websocket push channel.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/engine"
	"crypto_tracker/internal/event"
	"crypto_tracker/internal/market"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Controller is the part of engine.Controller the feed drives.
type Controller interface {
	Snapshot() engine.State
	Subscribe(buffer int) *event.Subscription[engine.State]
	Refresh(ctx context.Context) error
	SetCurrency(ctx context.Context, currency string) error
	ToggleFavorite(ctx context.Context, userID, coinID string) (bool, error)
	Chart(ctx context.Context, assetID, currency string) ([]domain.ChartPoint, error)
}

// Server serves the feed routes.
type Server struct {
	ctrl     Controller
	userID   string
	router   *mux.Router
	http     *http.Server
	upgrader websocket.Upgrader

	quit     chan struct{}
	quitOnce sync.Once
	conns    sync.WaitGroup
}

// NewServer builds the router. Call ListenAndServe to start it.
func NewServer(addr, userID string, ctrl Controller) *Server {
	s := &Server{
		ctrl:   ctrl,
		userID: userID,
		router: mux.NewRouter().StrictSlash(true),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		quit: make(chan struct{}),
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/state", s.handleState).Methods("GET")
	s.router.HandleFunc("/currency/{code}", s.handleCurrency).Methods("POST")
	s.router.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	s.router.HandleFunc("/favorites/{coinId}", s.handleFavorite).Methods("POST")
	s.router.HandleFunc("/coins/{id}/chart", s.handleChart).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWS).Methods("GET")

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	slog.Info("Feed server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes open websockets.
func (s *Server) Shutdown(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch market.KindOf(err) {
	case market.KindRateLimited, market.KindThrottledNoCache:
		status = http.StatusTooManyRequests
	case market.KindServerError, market.KindNetwork, market.KindMalformed:
		status = http.StatusBadGateway
	}
	if errors.Is(err, engine.ErrStopped) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: market.UserMessage(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleCurrency(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := s.ctrl.SetCurrency(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

type favoriteBody struct {
	CoinID   string `json:"coin_id"`
	Favorite bool   `json:"favorite"`
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	if s.userID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no user configured"})
		return
	}
	coinID := mux.Vars(r)["coinId"]
	on, err := s.ctrl.ToggleFavorite(r.Context(), s.userID, coinID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteBody{CoinID: coinID, Favorite: on})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	points, err := s.ctrl.Chart(r.Context(), id, r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade feed connection", slog.Any("error", err))
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()

	sub := s.ctrl.Subscribe(event.DefaultBuffer)
	defer sub.Unsubscribe()
	defer conn.Close()

	slog.Info("Feed client connected", slog.String("id", sub.ID), slog.String("remote", r.RemoteAddr))
	defer func() {
		slog.Info("Feed client disconnected",
			slog.String("id", sub.ID),
			slog.Uint64("dropped_events", sub.Dropped()))
	}()

	// The reader only services control frames and notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	initial := event.Event[engine.State]{Ts: time.Now(), Type: event.EvCoinsUpdated, State: s.ctrl.Snapshot()}
	if err := writeEvent(conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-s.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-gone:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				slog.Warn("Feed write failed", slog.String("id", sub.ID), slog.Any("error", err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev event.Event[engine.State]) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
