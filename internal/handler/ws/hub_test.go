package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"VolGuard/internal/domain/models"
	applogger "VolGuard/pkg/logger"
)

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/assessments" + query
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func newHubServer(t *testing.T, opts ...HubOption) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(applogger.NewNop(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	e := echo.New()
	h.RegisterRoutes(e, e.Group(""))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return h, srv
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, h.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsFilteredAssessments(t *testing.T) {
	h, srv := newHubServer(t, WithStreamToken("s3cret"))

	all := dial(t, srv, "?token=s3cret")
	defer all.Close()
	only := dial(t, srv, "?client_id=C2")
	defer only.Close()
	waitSubscribers(t, h, 2)

	h.Publish(models.PortfolioRiskAssessment{ClientID: "C1", PortfolioVolatility: 0.35})
	h.Publish(models.PortfolioRiskAssessment{ClientID: "C2", PortfolioVolatility: 0.2, WithinBand: true})

	read := func(conn *websocket.Conn) Event {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	}

	if ev := read(all); ev.Payload.ClientID != "C1" || ev.Event != "assessment" {
		t.Fatalf("unexpected first frame %+v", ev)
	}
	if ev := read(all); ev.Payload.ClientID != "C2" {
		t.Fatalf("unexpected second frame %+v", ev)
	}
	if ev := read(only); ev.Payload.ClientID != "C2" || !ev.Payload.WithinBand {
		t.Fatalf("filtered subscriber got %+v", ev)
	}
}

func TestHubPublishDoesNotBlock(t *testing.T) {
	h := NewHub(applogger.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			h.Publish(models.PortfolioRiskAssessment{ClientID: "C1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked without a running hub")
	}
}

func TestHubRefusesUnfilteredStreamWithoutToken(t *testing.T) {
	cases := []struct {
		name   string
		opts   []HubOption
		query  string
		header http.Header
		status int
	}{
		{"no token configured", nil, "", nil, http.StatusForbidden},
		{"missing token", []HubOption{WithStreamToken("s3cret")}, "", nil, http.StatusForbidden},
		{"wrong token", []HubOption{WithStreamToken("s3cret")}, "?token=nope", nil, http.StatusForbidden},
		{"bearer token", []HubOption{WithStreamToken("s3cret")}, "", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusSwitchingProtocols},
		{"single client needs no token", nil, "?client_id=C1", nil, http.StatusSwitchingProtocols},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, srv := newHubServer(t, tc.opts...)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tc.query), tc.header)
			if conn != nil {
				defer conn.Close()
			}
			if resp == nil {
				t.Fatalf("no handshake response: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d (%v)", tc.status, resp.StatusCode, err)
			}
		})
	}
}

func TestHubChecksOrigin(t *testing.T) {
	cases := []struct {
		name   string
		opts   []HubOption
		origin string
		ok     bool
	}{
		{"cross origin refused by default", nil, "http://evil.example", false},
		{"listed origin", []HubOption{WithAllowedOrigins([]string{"https://desk.example"})}, "https://desk.example", true},
		{"unlisted origin", []HubOption{WithAllowedOrigins([]string{"https://desk.example"})}, "http://evil.example", false},
		{"wildcard", []HubOption{WithAllowedOrigins([]string{"*"})}, "http://anywhere.example", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, srv := newHubServer(t, tc.opts...)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?client_id=C1"), http.Header{"Origin": {tc.origin}})
			if conn != nil {
				defer conn.Close()
			}
			if tc.ok && err != nil {
				t.Fatalf("expected upgrade, got %v", err)
			}
			if !tc.ok && (err == nil || resp == nil || resp.StatusCode != http.StatusForbidden) {
				t.Fatalf("expected 403, got %v", err)
			}
		})
	}
}
