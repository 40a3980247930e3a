// ABOUTME: Global roomId -> Room map with lifecycle management and a discovery view
// ABOUTME: Generalizes the teacher's single clients map behind one RWMutex to a map of rooms
package registry

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/room"
	"github.com/beatsync/beatsync-server/internal/storage"
)

// Registry owns every Room for the process. Cross-room state is disjoint,
// so only a lightweight RWMutex guards the map itself; each Room serializes
// its own mutations independently.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room

	blobStore storage.BlobStore
	logger    zerolog.Logger
}

// New constructs an empty Registry.
func New(blobStore storage.BlobStore, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:     make(map[string]*room.Room),
		blobStore: blobStore,
		logger:    logger,
	}
}

// GetOrCreateRoom returns the Room for id, creating it if absent.
func (reg *Registry) GetOrCreateRoom(id string) *room.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		return r
	}
	r := room.New(id, reg.blobStore, reg.logger, reg.DeleteRoom)
	reg.rooms[id] = r
	return r
}

// GetRoom returns the Room for id if it exists.
func (reg *Registry) GetRoom(id string) (*room.Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// DeleteRoom removes id from the registry. Passed to each Room as its
// onEmpty cleanup hook.
func (reg *Registry) DeleteRoom(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, id)
}

// Rooms returns every room id currently registered.
func (reg *Registry) Rooms() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	return ids
}

// ActiveRooms returns the rooms with >=1 connected client, for the discovery
// endpoint.
func (reg *Registry) ActiveRooms() []string {
	reg.mu.RLock()
	snapshot := make(map[string]*room.Room, len(reg.rooms))
	for id, r := range reg.rooms {
		snapshot[id] = r
	}
	reg.mu.RUnlock()

	active := make([]string, 0, len(snapshot))
	for id, r := range snapshot {
		if r.ConnectedClientCount() > 0 {
			active = append(active, id)
		}
	}
	return active
}

// processStart is the reference point for StatsSnapshot.UptimeSeconds.
var processStart = time.Now()

// Stats returns process-wide counters for GET /stats.
func (reg *Registry) Stats() model.StatsSnapshot {
	reg.mu.RLock()
	rooms := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	roomCount := len(reg.rooms)
	reg.mu.RUnlock()

	connected := 0
	for _, r := range rooms {
		connected += r.ConnectedClientCount()
	}
	return model.StatsSnapshot{
		UptimeSeconds:    int64(time.Since(processStart).Seconds()),
		RoomCount:        roomCount,
		ConnectedClients: connected,
		GoroutineCount:   runtime.NumGoroutine(),
	}
}

// RestoreRoom installs a Room rebuilt from a backup snapshot (no live
// sessions) directly into the map, used during startup restore.
func (reg *Registry) RestoreRoom(id string, r *room.Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[id] = r
}

// NewRoomID mints a fresh, unused 6-digit numeric room id.
func (reg *Registry) NewRoomID() string {
	for {
		id := fmt.Sprintf("%06d", rand.Intn(1000000))
		reg.mu.RLock()
		_, exists := reg.rooms[id]
		reg.mu.RUnlock()
		if !exists {
			return id
		}
	}
}
