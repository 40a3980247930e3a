// ABOUTME: Per-connection session state: identity, send queue, single-writer goroutine
// ABOUTME: Grounded on the teacher's Client{sendChan,clientWriter} and bken's ctrlMu-guarded sendRaw
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const sendQueueSize = 64

// Session is a connected device's channel. It owns no room state: addressing
// and membership live in the Room (C5), looked up by id via the Registry.
type Session struct {
	ClientID        string
	Username        string
	RoomID          string
	LastHeartbeatAt int64

	conn     *websocket.Conn
	sendChan chan []byte
	closeMu  sync.Mutex
	closed   bool
	done     chan struct{}
}

// New wraps conn and starts the single writer goroutine that drains sendChan.
// Per spec.md §5, WebSocket write is single-writer per session.
func New(clientID, username, roomID string, conn *websocket.Conn) *Session {
	s := &Session{
		ClientID: clientID,
		Username: username,
		RoomID:   roomID,
		conn:     conn,
		sendChan: make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Session) writer() {
	for {
		select {
		case msg, ok := <-s.sendChan:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send enqueues msg for delivery, marshaling it to JSON first. Ordering is
// preserved: frames enqueued by one handler invocation are written in the
// order Send was called.
func (s *Session) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.sendChan <- data:
		return nil
	default:
		// Slow consumer: drop rather than block the room's serialization point.
		return nil
	}
}

// ReadMessage blocks for the next inbound frame. The caller is responsible
// for stamping t1 immediately after this returns, before any parsing.
func (s *Session) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

// Close closes the underlying connection exactly once with the given code
// and reason, per spec.md §5's heartbeat-timeout close contract.
func (s *Session) Close(code int, reason string) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	closeMsg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	_ = s.conn.Close()
}

// IsClosed reports whether Close has already run.
func (s *Session) IsClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}
