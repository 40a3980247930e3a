// ABOUTME: Rolling chat buffer with monotonic per-room message ids
package room

import (
	"strings"

	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/wire"
)

// SendChatMessage rejects blank text, assigns the next monotonic id,
// appends to the rolling buffer (evicting the oldest past the cap), and
// broadcasts an incremental CHAT_UPDATE.
func (r *Room) SendChatMessage(clientID, username, countryCode, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	r.mu.Lock()
	r.nextChatID++
	msg := model.ChatMessage{
		ID:          r.nextChatID,
		ClientID:    clientID,
		Username:    username,
		Text:        text,
		Timestamp:   nowMs(),
		CountryCode: countryCode,
	}
	r.chat = append(r.chat, msg)
	if len(r.chat) > model.ChatBufferCap {
		r.chat = r.chat[len(r.chat)-model.ChatBufferCap:]
	}
	newestID := r.nextChatID
	r.mu.Unlock()

	r.broadcastToAll(wire.RoomEventMessage{
		Type:       wire.OutRoomEvent,
		Event:      wire.EventChatUpdate,
		Messages:   []model.ChatMessage{msg},
		IsFullSync: false,
		NewestID:   newestID,
	})
}

// SendChatFullSyncTo unicasts the complete chat history to one client, used
// when that client first joins so it can reconcile by id set-union locally.
func (r *Room) SendChatFullSyncTo(clientID string) {
	r.mu.RLock()
	full := make([]model.ChatMessage, len(r.chat))
	copy(full, r.chat)
	newestID := r.nextChatID
	r.mu.RUnlock()

	r.unicastTo(clientID, wire.RoomEventMessage{
		Type:       wire.OutRoomEvent,
		Event:      wire.EventChatUpdate,
		Messages:   full,
		IsFullSync: true,
		NewestID:   newestID,
	})
}
