package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alecgard/taskforge/internal/activity"
)

const (
	teamA = "11111111-1111-4111-8111-111111111111"
	teamB = "22222222-2222-4222-8222-222222222222"
	teamC = "33333333-3333-4333-8333-333333333333"
	teamD = "abcdef12-3456-4abc-8def-abcdefabcdef"
)

type fakeAuth map[string]string

func (f fakeAuth) Authenticate(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[string]bool // teamID + "/" + userID
	fail    map[string]bool // teamID
}

func (f *fakeMembers) IsMember(_ context.Context, teamID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[teamID] {
		return false, errors.New("db down")
	}
	return f.members[teamID+"/"+userID], nil
}

type countingObserver struct {
	mu     sync.Mutex
	conns  int
	frames map[string]int
}

func (o *countingObserver) RealtimeConnected() {
	o.mu.Lock()
	o.conns++
	o.mu.Unlock()
}

func (o *countingObserver) RealtimeDisconnected() {
	o.mu.Lock()
	o.conns--
	o.mu.Unlock()
}

func (o *countingObserver) IncRealtimeFrame(direction, frameType string) {
	o.mu.Lock()
	o.frames[direction+":"+frameType]++
	o.mu.Unlock()
}

type harness struct {
	bus *activity.LocalBus
	gw  *Gateway
	srv *httptest.Server
	obs *countingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bus := activity.NewLocalBus()
	members := &fakeMembers{
		members: map[string]bool{teamA + "/user-1": true, teamB + "/user-1": true, teamD + "/user-1": true},
		fail:    map[string]bool{teamC: true},
	}
	gw := NewGateway(bus, fakeAuth{"good-token": "user-1"}, members, Options{SendBuffer: 16})
	obs := &countingObserver{frames: make(map[string]int)}
	gw.SetObserver(obs)

	srv := httptest.NewServer(gw)
	t.Cleanup(func() {
		gw.Close()
		srv.Close()
	})
	return &harness{bus: bus, gw: gw, srv: srv, obs: obs}
}

func (h *harness) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("good-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return f
}

func TestRejectsMissingToken(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRejectsInvalidToken(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("bad-token"), nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
	if h.gw.Connections() != 0 {
		t.Errorf("expected no registered connections, got %d", h.gw.Connections())
	}
}

func TestSubscribeReceivesTeamActivity(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","teamId":"`+teamA+`"}`)
	f := receive(t, conn)
	if f.Type != TypeSubscribed || f.TeamID != teamA {
		t.Fatalf("expected subscribed frame for team A, got %+v", f)
	}

	_ = h.bus.Publish(context.Background(), &activity.Activity{ID: "act-b", TeamID: teamB})
	_ = h.bus.Publish(context.Background(), &activity.Activity{ID: "act-a", TeamID: teamA, Action: activity.ActionCreated})

	f = receive(t, conn)
	if f.Type != TypeActivity || f.Activity == nil {
		t.Fatalf("expected activity frame, got %+v", f)
	}
	if f.Activity.ID != "act-a" || f.Activity.Action != activity.ActionCreated {
		t.Errorf("expected act-a, got %+v", f.Activity)
	}
}

func TestSubscribeCanonicalizesTeamID(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","teamId":"`+strings.ToUpper(teamD)+`"}`)
	f := receive(t, conn)
	if f.Type != TypeSubscribed || f.TeamID != teamD {
		t.Fatalf("expected subscribed frame with lower-case team id, got %+v", f)
	}

	_ = h.bus.Publish(context.Background(), &activity.Activity{ID: "act-d", TeamID: teamD})

	f = receive(t, conn)
	if f.Type != TypeActivity || f.Activity == nil || f.Activity.ID != "act-d" {
		t.Fatalf("expected activity act-d, got %+v", f)
	}

	send(t, conn, `{"type":"unsubscribe","teamId":"{`+strings.ToUpper(teamD)+`}"}`)
	if f := receive(t, conn); f.Type != TypeUnsubscribed || f.TeamID != teamD {
		t.Fatalf("expected unsubscribed frame with lower-case team id, got %+v", f)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","teamId":"`+teamA+`"}`)
	receive(t, conn)
	send(t, conn, `{"type":"unsubscribe","teamId":"`+teamA+`"}`)
	if f := receive(t, conn); f.Type != TypeUnsubscribed || f.TeamID != teamA {
		t.Fatalf("expected unsubscribed frame, got %+v", f)
	}

	_ = h.bus.Publish(context.Background(), &activity.Activity{ID: "act-a", TeamID: teamA})

	// Unsubscribing is unconditional and acknowledged in order, so the next
	// frame shows whether the activity slipped through.
	send(t, conn, `{"type":"unsubscribe","teamId":"`+teamB+`"}`)
	if f := receive(t, conn); f.Type != TypeUnsubscribed || f.TeamID != teamB {
		t.Fatalf("expected unsubscribed frame for team B, got %+v", f)
	}
}

func TestSubscribeForeignTeamIsForbidden(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	foreign := "44444444-4444-4444-8444-444444444444"

	send(t, conn, `{"type":"subscribe","teamId":"`+foreign+`"}`)
	f := receive(t, conn)
	if f.Type != TypeError || f.Code != CodeForbidden {
		t.Fatalf("expected FORBIDDEN error, got %+v", f)
	}

	_ = h.bus.Publish(context.Background(), &activity.Activity{ID: "act-x", TeamID: foreign})

	send(t, conn, `{"type":"unsubscribe","teamId":"`+teamA+`"}`)
	if f := receive(t, conn); f.Type != TypeUnsubscribed {
		t.Fatalf("expected no activity for foreign team, got %+v", f)
	}
}

func TestSubscribeLookupFailure(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","teamId":"`+teamC+`"}`)
	f := receive(t, conn)
	if f.Type != TypeError || f.Code != CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %+v", f)
	}
}

func TestInvalidFrames(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `{nope`, CodeBadJSON},
		{"array", `[1,2]`, CodeValidation},
		{"string", `"subscribe"`, CodeValidation},
		{"missing type", `{"teamId":"` + teamA + `"}`, CodeValidation},
		{"numeric type", `{"type":7}`, CodeValidation},
		{"missing team", `{"type":"subscribe"}`, CodeValidation},
		{"numeric team", `{"type":"unsubscribe","teamId":5}`, CodeValidation},
		{"malformed team", `{"type":"subscribe","teamId":"not-a-uuid"}`, CodeValidation},
		{"unknown type", `{"type":"ping"}`, CodeUnknownMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.raw)
			f := receive(t, conn)
			if f.Type != TypeError || f.Code != tt.code {
				t.Errorf("expected error %s, got %+v", tt.code, f)
			}
		})
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","teamId":"`+teamA+`"}`)
	receive(t, conn)
	if h.gw.Connections() != 1 {
		t.Fatalf("expected 1 connection, got %d", h.gw.Connections())
	}

	h.gw.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after gateway close")
	}
	if h.gw.Connections() != 0 {
		t.Errorf("expected 0 connections, got %d", h.gw.Connections())
	}

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if h.obs.conns != 0 {
		t.Errorf("expected connection gauge back at 0, got %d", h.obs.conns)
	}
	if h.obs.frames["in:subscribe"] != 1 || h.obs.frames["out:subscribed"] != 1 {
		t.Errorf("unexpected frame counts %v", h.obs.frames)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same host", nil, "http://api.example.com", true},
		{"foreign host", nil, "https://evil.example", false},
		{"listed origin", []string{"https://app.example"}, "https://app.example", true},
		{"wildcard", []string{"*"}, "https://anything.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gateway{opts: Options{AllowedOrigins: tt.allowed}}
			r := httptest.NewRequest(http.MethodGet, "http://api.example.com/realtime", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := g.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
