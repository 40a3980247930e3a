// ABOUTME: Serializes a Room to the persisted snapshot schema and rebuilds one without live sessions
package room

import (
	"github.com/rs/zerolog"

	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/storage"
)

// Snapshot returns this room's current state in the persisted backup shape.
func (r *Room) Snapshot() model.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]model.Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, *c)
	}
	queue := make([]model.AudioSource, len(r.queue))
	copy(queue, r.queue)
	chat := make([]model.ChatMessage, len(r.chat))
	copy(chat, r.chat)

	return model.RoomSnapshot{
		ClientDatas:   clients,
		AudioSources:  queue,
		GlobalVolume:  r.volume,
		PlaybackState: r.playback,
		Chat: &model.ChatSnapshot{
			Messages:      chat,
			NextMessageID: r.nextChatID,
		},
	}
}

// Restore rebuilds a Room's internal state from a snapshot without enrolling
// any live sessions, per spec.md §4.9 ("rebuild registry state without
// enrolling any live sessions").
func Restore(id string, snap model.RoomSnapshot, blobStore storage.BlobStore, logger zerolog.Logger, onEmpty func(string)) *Room {
	r := New(id, blobStore, logger, onEmpty)

	r.mu.Lock()
	for i := range snap.ClientDatas {
		c := snap.ClientDatas[i]
		r.clients[c.ClientID] = &c
	}
	r.queue = append([]model.AudioSource{}, snap.AudioSources...)
	r.volume = snap.GlobalVolume
	r.playback = snap.PlaybackState
	if snap.Chat != nil {
		r.chat = append([]model.ChatMessage{}, snap.Chat.Messages...)
		r.nextChatID = snap.Chat.NextMessageID
	}
	r.mu.Unlock()

	return r
}
