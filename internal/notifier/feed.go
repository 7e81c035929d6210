package notifier

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const feedWriteTimeout = 5 * time.Second

// FeedMessage is the envelope pushed to operator consoles.
type FeedMessage struct {
	Type      string               `json:"type"`
	Lead      *domain.LeadSnapshot `json:"lead,omitempty"`
	Operators int                  `json:"operators,omitempty"`
}

// Feed is a live lead feed for operator consoles connected over WebSocket.
// Operators authenticate with a shared token sent as a bearer header or
// the "token" query parameter.
type Feed struct {
	mu            sync.RWMutex
	active        map[string]*websocket.Conn
	allowedOrigin string
	token         string
	isDev         bool
}

// NewFeed creates an empty feed. An empty token disables the endpoint. In
// development any origin is accepted; the token is always required.
func NewFeed(allowedOrigin, token string, isDev bool) *Feed {
	return &Feed{
		active:        make(map[string]*websocket.Conn),
		allowedOrigin: allowedOrigin,
		token:         token,
		isDev:         isDev,
	}
}

// Enabled reports whether operators can connect.
func (f *Feed) Enabled() bool { return f.token != "" }

// Register adds an operator connection.
func (f *Feed) Register(connID string, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.active[connID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	f.active[connID] = conn
	slog.Info("Operator feed connected", "conn_id", connID, "operators", len(f.active))
}

// Unregister removes an operator connection if it is still the current one.
func (f *Feed) Unregister(connID string, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if current, ok := f.active[connID]; ok && current == conn {
		delete(f.active, connID)
		slog.Info("Operator feed disconnected", "conn_id", connID, "operators", len(f.active))
	}
}

// Count returns the number of connected operators.
func (f *Feed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.active)
}

// Notify broadcasts the lead to every operator. It fails only when
// operators are connected and none of them received the lead.
func (f *Feed) Notify(ctx context.Context, lead domain.LeadSnapshot) error {
	data, err := sonic.Marshal(FeedMessage{Type: "lead", Lead: &lead})
	if err != nil {
		return fmt.Errorf("encode feed message: %w", err)
	}

	f.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(f.active))
	for id, c := range f.active {
		conns[id] = c
	}
	f.mu.RUnlock()

	if len(conns) == 0 {
		return nil
	}

	var errs []error
	delivered := 0
	for id, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("Operator feed write error", "conn_id", id, "error", err)
			errs = append(errs, err)
			f.Unregister(id, conn)
			_ = conn.Close(websocket.StatusGoingAway, "write failed")
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("no operator received the lead: %w", errors.Join(errs...))
	}
	return nil
}

// ServeHTTP upgrades the request and keeps the operator connected until it
// closes. Messages sent by the operator are ignored.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.Enabled() {
		http.Error(w, "operator feed disabled", http.StatusServiceUnavailable)
		return
	}
	if !f.authorized(r) {
		slog.Warn("Operator feed unauthorized", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !f.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept operator WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close operator websocket", "error", closeErr)
		}
	}()

	connID := uuid.NewString()
	f.Register(connID, ws)
	defer f.Unregister(connID, ws)

	ctx := ws.CloseRead(r.Context())
	if err := f.writeJSON(ctx, ws, FeedMessage{Type: "hello", Operators: f.Count()}); err != nil {
		slog.Debug("Failed to greet operator", "error", err)
		return
	}
	<-ctx.Done()
}

// Close disconnects every operator.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, conn := range f.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(f.active, id)
	}
}

func (f *Feed) authorized(r *http.Request) bool {
	got := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, value, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return false
		}
		got = strings.TrimSpace(value)
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(f.token)) == 1
}

// checkOrigin requires a browser Origin outside development.
func (f *Feed) checkOrigin(r *http.Request) bool {
	if f.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin != "" && (f.allowedOrigin == "*" || origin == f.allowedOrigin) {
		return true
	}
	slog.Warn("Operator feed origin rejected", "origin", origin, "allowed", f.allowedOrigin)
	return false
}

func (f *Feed) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
