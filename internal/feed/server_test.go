package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/engine"
	"crypto_tracker/internal/event"
	"crypto_tracker/internal/market"
)

type fakeController struct {
	mu         sync.Mutex
	state      engine.State
	bus        *event.Bus[engine.State]
	refreshErr error
	chartErr   error
	toggled    []string
}

func newFakeController() *fakeController {
	return &fakeController{
		state: engine.State{SelectedCurrency: "usd", Status: engine.StatusUpdated},
		bus:   event.NewBus[engine.State](),
	}
}

func (f *fakeController) Snapshot() engine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Subscribe(buffer int) *event.Subscription[engine.State] {
	return f.bus.Subscribe(buffer)
}

func (f *fakeController) Refresh(ctx context.Context) error { return f.refreshErr }

func (f *fakeController) SetCurrency(ctx context.Context, currency string) error {
	f.mu.Lock()
	f.state.SelectedCurrency = strings.ToLower(currency)
	st := f.state
	f.mu.Unlock()
	f.bus.Publish(event.EvCoinsUpdated, st)
	return nil
}

func (f *fakeController) ToggleFavorite(ctx context.Context, userID, coinID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, userID+":"+coinID)
	return true, nil
}

func (f *fakeController) Chart(ctx context.Context, assetID, currency string) ([]domain.ChartPoint, error) {
	if f.chartErr != nil {
		return nil, f.chartErr
	}
	return []domain.ChartPoint{{Date: time.UnixMilli(1700000000000).UTC(), Price: 42}}, nil
}

func newTestServer(t *testing.T, ctrl *fakeController) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1:0", "u1", ctrl)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		ts.Close()
	})
	return s, ts
}

func TestServer_Routes(t *testing.T) {
	ctrl := newFakeController()
	_, ts := newTestServer(t, ctrl)

	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		contains string
	}{
		{"health", "GET", "/healthz", 200, "ok"},
		{"state", "GET", "/state", 200, `"status":"Data updated."`},
		{"currency", "POST", "/currency/EUR", 200, `"selected_currency":"eur"`},
		{"refresh", "POST", "/refresh", 200, `"status"`},
		{"favorite", "POST", "/favorites/bitcoin", 200, `"favorite":true`},
		{"chart", "GET", "/coins/bitcoin/chart?currency=usd", 200, `"price":42`},
		{"wrong method", "GET", "/refresh", 405, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d (%s)", tt.status, resp.StatusCode, body)
			}
			if tt.contains != "" && !strings.Contains(string(body), tt.contains) {
				t.Errorf("Expected body to contain %s, got %s", tt.contains, body)
			}
		})
	}

	if len(ctrl.toggled) != 1 || ctrl.toggled[0] != "u1:bitcoin" {
		t.Errorf("Expected toggle for configured user, got %v", ctrl.toggled)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	ctrl := newFakeController()
	ctrl.refreshErr = &market.Error{Kind: market.KindServerError, Status: 503}
	ctrl.chartErr = &market.Error{Kind: market.KindThrottledNoCache}
	_, ts := newTestServer(t, ctrl)

	resp, err := http.Post(ts.URL+"/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/coins/bitcoin/chart")
	if err != nil {
		t.Fatal(err)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", resp.StatusCode)
	}
	if body.Error == "" {
		t.Error("Expected error message")
	}

	ctrl.refreshErr = engine.ErrStopped
	resp, _ = http.Post(ts.URL+"/refresh", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestServer_FavoriteWithoutUser(t *testing.T) {
	s := NewServer("", "", newFakeController())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/favorites/bitcoin", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func TestServer_WebSocketPush(t *testing.T) {
	ctrl := newFakeController()
	_, ts := newTestServer(t, ctrl)

	conn, _, err := websocket.DefaultDialer.Dial(httpToWS(ts.URL)+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg map[string]json.RawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read initial failed: %v", err)
	}
	if string(msg["type"]) != `"coins_updated"` {
		t.Errorf("Unexpected initial type %s", msg["type"])
	}
	if _, ok := msg["state"]; !ok {
		t.Error("Expected state in message")
	}

	// Wait for the handler to subscribe before publishing.
	deadline := time.Now().Add(time.Second)
	for ctrl.bus.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ctrl.SetCurrency(context.Background(), "gbp")

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read push failed: %v", err)
	}
	if !strings.Contains(string(msg["state"]), `"selected_currency":"gbp"`) {
		t.Errorf("Expected pushed state, got %s", msg["state"])
	}
}

func TestWatcher_ReceivesEvents(t *testing.T) {
	ctrl := newFakeController()
	_, ts := newTestServer(t, ctrl)

	got := make(chan event.Event[engine.State], 8)
	w := NewWatcher(httpToWS(ts.URL)+"/ws", func(ev event.Event[engine.State]) { got <- ev })
	w.Start(context.Background())
	defer w.Stop()

	select {
	case ev := <-got:
		if ev.Type != event.EvCoinsUpdated || ev.State.SelectedCurrency != "usd" {
			t.Errorf("Unexpected initial event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for initial event")
	}

	deadline := time.Now().Add(time.Second)
	for ctrl.bus.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ctrl.SetCurrency(context.Background(), "jpy")

	select {
	case ev := <-got:
		if ev.State.SelectedCurrency != "jpy" {
			t.Errorf("Expected jpy, got %s", ev.State.SelectedCurrency)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for pushed event")
	}
}

func TestWatcher_StopWhileDisconnected(t *testing.T) {
	w := NewWatcher("ws://127.0.0.1:1/ws", nil)
	w.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop did not return within timeout")
	}
	if w.Connected() {
		t.Error("Expected disconnected watcher")
	}
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	if _, err := decodeEvent([]byte(`{"type":"bogus","state":{}}`)); err == nil {
		t.Error("Expected error for unknown type")
	}
	if _, err := decodeEvent([]byte(`not json`)); err == nil {
		t.Error("Expected error for bad json")
	}
}

