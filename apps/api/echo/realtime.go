package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/auth"
	"github.com/trezcool/admissions/core/notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32

	clientEventJoin = "join"
	clientEventPing = "ping"
)

var errJoinRefused = "cannot join the channel of another user"

type (
	realtimeHandler struct {
		authority *auth.Authority
		hub       *notification.Hub
		logger    core.Logger
		upgrader  websocket.Upgrader
	}

	clientMessage struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}

	joinData struct {
		UserID string `json:"userId"`
	}

	messageData struct {
		Message string `json:"message"`
	}
)

func newRealtimeHandler(authority *auth.Authority, hub *notification.Hub, logger core.Logger) *realtimeHandler {
	return &realtimeHandler{
		authority: authority,
		hub:       hub,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // sessions are authenticated by token
		},
	}
}

// serve upgrades an authenticated request and joins the session to the channel of the token subject.
func (h *realtimeHandler) serve(ctx echo.Context) error {
	claims, err := h.authority.Verify(bearerToken(ctx, true))
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}

	userID := claims.UserID()
	sess := notification.NewChanSession(sendBuffer)
	leave := h.hub.Join(userID, sess)
	sess.Deliver(joinedEvent(userID))

	go h.writePump(conn, sess)
	h.readPump(conn, userID, sess)

	leave()
	sess.Close()
	return nil
}

func joinedEvent(userID string) notification.Event {
	return notification.Event{Name: notification.EventJoined, Data: joinData{UserID: userID}, Timestamp: time.Now().UTC()}
}

func errorEvent(msg string) notification.Event {
	return notification.Event{Name: notification.EventError, Data: messageData{Message: msg}, Timestamp: time.Now().UTC()}
}

// readPump handles client messages until the connection fails or is closed.
func (h *realtimeHandler) readPump(conn *websocket.Conn, userID string, sess *notification.ChanSession) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(fmt.Sprintf("realtime session of %s: %v", userID, err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Event {
		case clientEventJoin:
			var data joinData
			if len(msg.Data) > 0 {
				_ = json.Unmarshal(msg.Data, &data)
			}
			if data.UserID != "" && data.UserID != userID {
				sess.Deliver(errorEvent(errJoinRefused))
				continue
			}
			sess.Deliver(joinedEvent(userID))
		case clientEventPing:
			sess.Deliver(notification.Event{Name: notification.EventPong, Timestamp: time.Now().UTC()})
		default:
			sess.Deliver(errorEvent(fmt.Sprintf("unknown event %q", msg.Event)))
		}
	}
}

// writePump is the only writer of conn.
func (h *realtimeHandler) writePump(conn *websocket.Conn, sess *notification.ChanSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case evt, ok := <-sess.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
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
