package handler

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/middleware"
	"github.com/Baaaki/deepmatch-realtime/internal/realtime"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
	eventTimeout   = 10 * time.Second
)

type WebSocketConfig struct {
	AllowedOrigins  []string
	EventsPerSecond float64
	EventBurst      int
	// MaxSessionLifetime closes sessions after the given age, 0 keeps them open
	MaxSessionLifetime time.Duration
}

type WebSocketHandler struct {
	router   *realtime.Router
	config   WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(router *realtime.Router, config WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		router: router,
		config: config,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// native mobile clients send no Origin
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.config.AllowedOrigins, "*") ||
		slices.Contains(h.config.AllowedOrigins, origin)
}

// Client is one WebSocket connection. Outbound events are queued on send
// and written by writePump, the only goroutine that writes to conn.
type Client struct {
	id          string
	userID      uint
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	limiter     *rate.Limiter
	connectedAt time.Time
}

func newClient(userID uint, limiter *rate.Limiter) *Client {
	return &Client{
		id:          uuid.NewString(),
		userID:      userID,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		limiter:     limiter,
		connectedAt: time.Now(),
	}
}

func (c *Client) ID() string   { return c.id }
func (c *Client) UserID() uint { return c.userID }

// Send never blocks. A full buffer drops the event.
func (c *Client) Send(ev realtime.OutboundEvent) bool {
	data, err := realtime.Encode(ev)
	if err != nil {
		logger.Log.Error("Failed to encode event",
			zap.String("event", ev.EventName()),
			zap.Error(err),
		)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		logger.Log.Warn("Send buffer full, dropping event",
			zap.Uint("user_id", c.userID),
			zap.String("session_id", c.id),
			zap.String("event", ev.EventName()),
		)
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// HandleWebSocket authenticates, admits the session into the router and
// then serves it until either side goes away.
// GET /api/ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}

	var limiter *rate.Limiter
	if h.config.EventsPerSecond > 0 {
		burst := h.config.EventBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.config.EventsPerSecond), burst)
	}
	client := newClient(claims.UserID, limiter)

	// admission runs before the upgrade so refusals are plain HTTP errors
	if err := h.router.Connect(c.Request.Context(), client); err != nil {
		logger.Log.Warn("WebSocket connection refused",
			zap.Uint("user_id", claims.UserID),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade connection",
			zap.Uint("user_id", claims.UserID),
			zap.Error(err),
		)
		client.Close()
		h.disconnect(client)
		return
	}
	client.conn = conn

	go h.writePump(client)
	h.readPump(client)
}

func (h *WebSocketHandler) disconnect(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	h.router.Disconnect(ctx, client)
}

func (h *WebSocketHandler) readPump(client *Client) {
	defer func() {
		client.Close()
		h.disconnect(client)
		logger.Log.Debug("Read loop finished",
			zap.Uint("user_id", client.userID),
			zap.String("session_id", client.id),
			zap.Duration("session_duration", time.Since(client.connectedAt).Round(time.Second)),
		)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("WebSocket read error",
					zap.Uint("user_id", client.userID),
					zap.Error(err),
				)
			}
			return
		}

		ev, name, err := realtime.DecodeInbound(raw)
		if err != nil {
			logger.Log.Debug("Rejected inbound frame",
				zap.Uint("user_id", client.userID),
				zap.String("event", name),
				zap.Error(err),
			)
			h.router.ReplyError(client, name, err)
			continue
		}

		if client.limiter != nil && !client.limiter.Allow() {
			client.Send(realtime.ErrorEvent{
				Event: name,
				Code:  "rate_limited",
				Error: "too many events, slow down",
			})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		h.router.Dispatch(ctx, client, ev)
		cancel()

		select {
		case <-client.done:
			return
		default:
		}
	}
}

func (h *WebSocketHandler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)

	var lifetime <-chan time.Time
	if h.config.MaxSessionLifetime > 0 {
		timer := time.NewTimer(h.config.MaxSessionLifetime)
		defer timer.Stop()
		lifetime = timer.C
	}

	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Log.Debug("Write failed",
					zap.Uint("user_id", client.userID),
					zap.Error(err),
				)
				client.Close()
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}

		case <-lifetime:
			logger.Log.Info("Session lifetime reached",
				zap.Uint("user_id", client.userID),
				zap.String("session_id", client.id),
			)
			client.Close()
			closeGracefully(client, "session expired")
			return

		case <-client.done:
			closeGracefully(client, "connection closed")
			return
		}
	}
}

// closeGracefully flushes what is already queued and sends a close frame.
// Closing conn afterwards unblocks readPump.
func closeGracefully(client *Client, reason string) {
flush:
	for {
		select {
		case data := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			break flush
		}
	}

	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = client.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
	)
}

// CloseAll terminates every live session, used on shutdown
func (h *WebSocketHandler) CloseAll() int {
	closed := 0
	registry := h.router.Registry()
	for _, userID := range registry.OnlineUsers() {
		for _, s := range registry.SessionsFor(userID) {
			s.Close()
			closed++
		}
	}
	return closed
}
