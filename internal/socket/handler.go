// internal/socket/handler.go
package socket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TokenAuthenticator resolves a bearer token to a user id.
type TokenAuthenticator interface {
	UserIDFromToken(tokenString string) (string, error)
}

// Handler upgrades authenticated requests and hands the connection to the hub.
type Handler struct {
	Hub      *Hub
	auth     TokenAuthenticator
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewHandler creates a WebSocket handler. An empty origin list accepts any origin.
func NewHandler(hub *Hub, auth TokenAuthenticator, allowedOrigins []string) *Handler {
	return &Handler{
		Hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logrus.WithField("component", "websocket"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// requestToken prefers the ?token= query parameter, which is the only option
// browsers have, and falls back to the Authorization header.
func requestToken(c *gin.Context) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	scheme, tok, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// HandleWebSocket authenticates before upgrading so rejected callers get a
// plain 401. Every accepted client starts in the queue room and its own
// user room.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	tokenString := requestToken(c)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided", "code": "unauthorized"})
		return
	}

	userID, err := h.auth.UserIDFromToken(tokenString)
	if err != nil {
		h.log.WithError(err).Debug("Rejected WebSocket token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "code": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.Hub, userID, conn)
	if !h.Hub.add(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
		conn.Close()
		return
	}
	for _, room := range []string{UserRoom(userID), RoomPowerLine} {
		h.Hub.JoinRoom(client, room)
	}

	go client.WritePump()
	go client.ReadPump()
}
