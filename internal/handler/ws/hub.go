package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	applogger "VolGuard/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	clientBuf  = 16
)

// Event is the frame pushed to subscribers.
type Event struct {
	Event   string                         `json:"event"`
	Payload models.PortfolioRiskAssessment `json:"payload"`
}

type subscriber struct {
	clientID string // empty subscribes to every client
	send     chan []byte
}

// Hub streams assessments to websocket subscribers. Slow subscribers miss
// frames rather than block the fan-out.
type Hub struct {
	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	broadcast chan models.PortfolioRiskAssessment
	upgrader  websocket.Upgrader
	origins   []string
	token     string
	l         *applogger.Logger
}

type HubOption func(*Hub)

// WithAllowedOrigins sets the origins allowed to upgrade. Without any, only
// same-origin requests are accepted; "*" accepts every origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		h.origins = origins
	}
}

// WithStreamToken sets the bearer token required to subscribe without a
// client_id. Without a token such subscriptions are refused.
func WithStreamToken(token string) HubOption {
	return func(h *Hub) {
		h.token = token
	}
}

func NewHub(l *applogger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		subs:      make(map[*subscriber]struct{}),
		broadcast: make(chan models.PortfolioRiskAssessment, 1000),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		l: l,
	}
	for _, opt := range opts {
		opt(h)
	}
	if len(h.origins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get(echo.HeaderAuthorization), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// Publish queues an assessment for delivery and never blocks.
func (h *Hub) Publish(a models.PortfolioRiskAssessment) {
	select {
	case h.broadcast <- a:
	default:
		h.l.Warn("assessment stream buffer full, dropping", applogger.String("client_id", a.ClientID))
	}
}

// Run delivers queued assessments until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subs {
				delete(h.subs, s)
				close(s.send)
			}
			h.mu.Unlock()
			return
		case a := <-h.broadcast:
			msg, err := json.Marshal(Event{Event: "assessment", Payload: a})
			if err != nil {
				h.l.Error("marshal assessment", applogger.Error(err))
				continue
			}
			h.mu.RLock()
			for s := range h.subs {
				if s.clientID != "" && s.clientID != a.ClientID {
					continue
				}
				select {
				case s.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) RegisterRoutes(e *echo.Echo, _ *echo.Group) {
	e.GET("/ws/assessments", h.Serve)
}

// Serve upgrades the request. The client_id query parameter narrows the
// stream to one client; the unfiltered stream needs the stream token.
func (h *Hub) Serve(c echo.Context) error {
	clientID := c.QueryParam("client_id")
	if clientID == "" && !h.authorized(c.Request()) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"status":  http.StatusForbidden,
			"message": "client_id or stream token required",
		})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	s := &subscriber{clientID: clientID, send: make(chan []byte, clientBuf)}
	h.add(s)
	h.l.Debug("assessment subscriber connected",
		applogger.String("client_id", s.clientID),
		applogger.Int("subscribers", h.Subscribers()),
	)

	go h.readPump(conn, s)
	h.writePump(conn, s)
	return nil
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(conn *websocket.Conn, s *subscriber) {
	defer h.remove(s)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domrepo.AssessmentSink = (*Hub)(nil)
