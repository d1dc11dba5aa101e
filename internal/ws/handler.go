package ws

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/duochat/duochat/internal/chat"
	"github.com/duochat/duochat/internal/http/handlers"
	"github.com/duochat/duochat/internal/http/middleware"
)

var wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "duochat_ws_connections",
	Help: "Currently open websocket connections.",
})

func init() {
	prometheus.MustRegister(wsConnections)
}

// TokenVerifier validates a session token and returns the identity it was
// issued to.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// Handler upgrades authenticated requests to websocket connections and
// hands them to the room.
type Handler struct {
	room           *chat.Room
	tokens         TokenVerifier
	limiter        *middleware.RateLimiter
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewHandler(room *chat.Room, tokens TokenVerifier, limiter *middleware.RateLimiter, allowedOrigins []string) *Handler {
	h := &Handler{
		room:           room,
		tokens:         tokens,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), any origin when "*" is configured, and otherwise only the
// configured origins, compared case-insensitively on scheme://host.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, normalized) {
			return true
		}
	}
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// tokenFromRequest looks for the session token in the session cookie, the
// Authorization header, then the token query parameter. Browsers cannot
// set headers on websocket dials, so the query fallback stays.
func tokenFromRequest(c *gin.Context) string {
	if ck, err := c.Cookie(handlers.SessionCookie); err == nil && ck != "" {
		return ck
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return c.Query("token")
}

// Serve handles GET /ws. Authentication and rate limiting happen before
// the upgrade; after the upgrade all errors are websocket close frames.
func (h *Handler) Serve(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	raw := tokenFromRequest(c)
	if raw == "" {
		handlers.Fail(c, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "Missing session token")
		return
	}
	identity, err := h.tokens.Verify(raw)
	if err != nil {
		lg.Warn().Err(err).Msg("websocket token rejected")
		handlers.Fail(c, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "Invalid or expired session token")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity) {
		handlers.Fail(c, http.StatusTooManyRequests, handlers.ErrCodeRateLimited, "Too many connection attempts")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn)
	wsConnections.Inc()
	lg.Info().Str("identity", identity).Msg("websocket connected")

	go client.writePump()

	ctx := c.Request.Context()
	if err := h.room.OnConnect(ctx, identity, client); err != nil {
		lg.Error().Err(err).Str("identity", identity).Msg("room join failed")
		client.Close(websocket.CloseInternalServerErr, "could not join room")
		close(client.send)
		wsConnections.Dec()
		return
	}

	h.readPump(c, identity, client)
}

// readPump feeds inbound frames to the room until the peer goes away,
// then reports the disconnect. Runs on the request goroutine.
func (h *Handler) readPump(c *gin.Context, identity string, client *Client) {
	lg := middleware.LoggerFrom(c)
	ctx := c.Request.Context()

	defer func() {
		wsConnections.Dec()
		close(client.send)
		client.conn.Close()
		lg.Info().Str("identity", identity).Msg("websocket disconnected")
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.conn.ReadMessage()
		if err != nil {
			code, reason := websocket.CloseNormalClosure, ""
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code, reason = closeErr.Code, closeErr.Text
			}
			h.room.OnDisconnect(ctx, client, code, reason)
			return
		}
		h.room.OnMessage(ctx, client, frame)
	}
}
