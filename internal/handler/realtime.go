package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/realtime"
	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

// RealtimeHandler upgrades authenticated requests to the seat channel.
type RealtimeHandler struct {
	Hub      *realtime.Hub
	Secret   string
	Upgrader websocket.Upgrader
}

// NewRealtimeHandler builds a handler.  Browsers cannot set headers on a
// WebSocket handshake, so the token travels in the query string and any
// origin is accepted.
func NewRealtimeHandler(hub *realtime.Hub, secret string) *RealtimeHandler {
	return &RealtimeHandler{
		Hub:    hub,
		Secret: secret,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect handles GET /v1/ws?token=<jwt>.  The connection is served on the
// request goroutine until it closes.
func (h *RealtimeHandler) Connect(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		raw = strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	}
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing token"})
	}
	id, err := utils.ParseAccessToken(h.Secret, raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	conn, err := h.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	h.Hub.Serve(conn, id.UserID)
	return nil
}
