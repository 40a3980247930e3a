// ABOUTME: Builds and fans out ROOM_EVENT / SCHEDULED_ACTION broadcasts for state changes
package room

import (
	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/wire"
)

func (r *Room) broadcastClientChange() {
	r.broadcastToAll(wire.RoomEventMessage{
		Type:    wire.OutRoomEvent,
		Event:   wire.EventClientChange,
		Clients: r.snapshotClientsRLock(),
	})
}

func (r *Room) broadcastRoomEvent(msg wire.RoomEventMessage) {
	r.broadcastToAll(msg)
}

func roomEventSetPlaybackControls(perm model.Permission) wire.RoomEventMessage {
	return wire.RoomEventMessage{
		Type:        wire.OutRoomEvent,
		Event:       wire.EventSetPlaybackControls,
		Permissions: perm,
	}
}

func (r *Room) currentQueueSnapshotRLock() []model.AudioSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AudioSource, len(r.queue))
	copy(out, r.queue)
	return out
}

func (r *Room) broadcastSetAudioSources() {
	r.broadcastToAll(wire.RoomEventMessage{
		Type:    wire.OutRoomEvent,
		Event:   wire.EventSetAudioSources,
		Sources: r.currentQueueSnapshotRLock(),
	})
}
