// Package realtime serves the websocket endpoint that streams team activity
// to subscribed connections.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alecgard/taskforge/internal/activity"
)

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// MembershipChecker reports whether a user belongs to a team.
type MembershipChecker interface {
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
}

// Observer receives connection and frame counts.
type Observer interface {
	RealtimeConnected()
	RealtimeDisconnected()
	IncRealtimeFrame(direction, frameType string)
}

type nopObserver struct{}

func (nopObserver) RealtimeConnected()              {}
func (nopObserver) RealtimeDisconnected()           {}
func (nopObserver) IncRealtimeFrame(string, string) {}

// Options tunes connection buffers and keepalive timing.
type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	// AllowedOrigins lists browser origins allowed to connect. Same-host
	// origins are always allowed; "*" allows any.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	return o
}

// Gateway upgrades authenticated requests and forwards bus activity to
// connections subscribed to the activity's team.
type Gateway struct {
	auth     Authenticator
	members  MembershipChecker
	opts     Options
	upgrader websocket.Upgrader
	observer Observer

	mu          sync.RWMutex
	clients     map[*client]struct{}
	closed      bool
	unsubscribe func()
}

// NewGateway creates a Gateway subscribed to bus.
func NewGateway(bus activity.Bus, auth Authenticator, members MembershipChecker, opts Options) *Gateway {
	g := &Gateway{
		auth:     auth,
		members:  members,
		opts:     opts.withDefaults(),
		observer: nopObserver{},
		clients:  make(map[*client]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	g.unsubscribe = bus.Subscribe(g.broadcast)
	return g
}

// SetObserver installs o. Call before serving.
func (g *Gateway) SetObserver(o Observer) {
	if o != nil {
		g.observer = o
	}
}

// ServeHTTP authenticates the token query parameter and upgrades the
// connection. Requests without a valid token are rejected with 401 before
// the upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeUnauthorized(w, "Missing access token")
		return
	}
	userID, err := g.auth.Authenticate(token)
	if err != nil {
		writeUnauthorized(w, "Invalid access token")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(g, conn, userID, g.opts.SendBuffer)
	if !g.add(c) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Close detaches from the bus and closes every connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	clients := g.clients
	g.clients = make(map[*client]struct{})
	g.mu.Unlock()

	g.unsubscribe()
	for c := range clients {
		c.close()
		g.observer.RealtimeDisconnected()
	}
}

// Connections returns the number of live connections.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) add(c *client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.clients[c] = struct{}{}
	g.observer.RealtimeConnected()
	return true
}

func (g *Gateway) remove(c *client) {
	g.mu.Lock()
	_, ok := g.clients[c]
	delete(g.clients, c)
	g.mu.Unlock()

	if ok {
		g.observer.RealtimeDisconnected()
	}
	c.close()
}

// broadcast forwards a to subscribed connections. Connections with a full
// buffer miss the frame.
func (g *Gateway) broadcast(a *activity.Activity) {
	data, err := json.Marshal(Frame{Type: TypeActivity, Activity: a})
	if err != nil {
		slog.Error("failed to encode activity frame", "activity_id", a.ID, "error", err)
		return
	}

	g.mu.RLock()
	targets := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		if c.subscribed(a.TeamID) {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if c.enqueue(data) {
			g.observer.IncRealtimeFrame("out", TypeActivity)
		} else {
			slog.Debug("dropped activity frame", "user_id", c.userID, "activity_id", a.ID)
		}
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":      "UNAUTHORIZED",
			"message":   message,
			"requestId": w.Header().Get("X-Request-ID"),
		},
	})
}
