// ABOUTME: WebSocket upgrade and per-connection read loop, t1 stamped before any parsing
// ABOUTME: Grounded on the teacher's handleWebSocket/handleConnection and bken's serveConn upgrade idiom
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/beatsync/beatsync-server/internal/clock"
	"github.com/beatsync/beatsync-server/internal/logging"
	"github.com/beatsync/beatsync-server/internal/session"
	"github.com/beatsync/beatsync-server/internal/wire"
)

var upgrader = websocket.Upgrader{
	// TODO: narrow to an allowlist once the browser client's deployed origin
	// is known; permissive for now, matching the teacher's own stub.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c echo.Context) error {
	roomID := c.QueryParam("roomId")
	clientID := c.QueryParam("clientId")
	username := c.QueryParam("username")
	if roomID == "" || clientID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "roomId and clientId are required"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("ws upgrade failed")
		return nil
	}

	sess := session.New(clientID, username, roomID, conn)
	ctx := logging.WithClient(logging.WithRoom(c.Request().Context(), roomID), clientID)

	room := s.registry.GetOrCreateRoom(roomID)
	room.AddClient(clientID, username, sess)
	s.logger.Info().Str("room_id", roomID).Str("client_id", clientID).Msg("client connected")

	defer func() {
		room.RemoveClient(clientID)
		sess.Close(websocket.CloseNormalClosure, "connection closed")
		s.logger.Info().Str("room_id", roomID).Str("client_id", clientID).Msg("client disconnected")
	}()

	s.serveConn(ctx, sess)
	return nil
}

func (s *Server) serveConn(ctx context.Context, sess *session.Session) {
	for {
		raw, err := sess.ReadMessage()
		t1 := clock.NowMs()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.L(ctx, s.logger).Debug().Err(err).Msg("ws read error")
			}
			return
		}

		req, decodeErr := wire.Decode(raw)
		if decodeErr != nil {
			_ = sess.Send(wire.NewErrorFrame(decodeErr.Error()))
			continue
		}

		s.dispatch.Dispatch(ctx, sess, req, t1)
	}
}
