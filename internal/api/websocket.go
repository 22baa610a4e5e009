package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/models"
	"go.uber.org/zap"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeState = "state"
	MsgTypePong  = "pong"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadLimit    = 4 * 1024
)

// WSMessage is the envelope of every websocket message
type WSMessage struct {
	Type      string            `json:"type"`
	State     *models.ViewState `json:"state,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// StateStreamHandlerImpl pushes the caller's view state after every change
type StateStreamHandlerImpl struct {
	sessions *sessionResolver
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStateStreamHandler creates a new websocket state handler
func NewStateStreamHandler(sessions *sessionResolver, logger *zap.Logger) StateStreamHandler {
	return &StateStreamHandlerImpl{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			// The session cookie is SameSite=Lax; cross-site pages cannot
			// attach it, so any origin only ever sees a fresh session.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: logger,
	}
}

// HandleStateStream upgrades the connection and streams state messages
// until the client goes away or the session is closed.
func (h *StateStreamHandlerImpl) HandleStateStream(c echo.Context) error {
	id, view := h.sessions.resolve(c)

	// The upgrade response is written by the upgrader, so a freshly issued
	// session cookie must be handed over explicitly.
	var respHeader http.Header
	if cookies := c.Response().Header().Values("Set-Cookie"); len(cookies) > 0 {
		respHeader = http.Header{"Set-Cookie": cookies}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), respHeader)
	if err != nil {
		return err
	}
	defer ws.Close()

	logger := h.logger.With(zap.String("session", shortID(id)))
	logger.Debug("websocket connected")

	updates, cancel := view.Subscribe()
	defer cancel()

	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	ws.SetReadLimit(wsReadLimit)
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read failed", zap.Error(err))
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	current := view.Snapshot()
	if err := h.send(ws, MsgTypeState, &current); err != nil {
		return nil
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Debug("websocket disconnected")
			return nil

		case <-pings:
			// An open page counts as activity, so idle cleanup leaves it alone.
			h.sessions.sessions.TouchSession(id)
			if err := h.send(ws, MsgTypePong, nil); err != nil {
				return nil
			}

		case state, ok := <-updates:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(wsWriteWait))
				return nil
			}
			if err := h.send(ws, MsgTypeState, &state); err != nil {
				return nil
			}

		case <-ticker.C:
			h.sessions.sessions.TouchSession(id)
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *StateStreamHandlerImpl) send(ws *websocket.Conn, msgType string, state *models.ViewState) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := ws.WriteJSON(WSMessage{
		Type:      msgType,
		State:     state,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
