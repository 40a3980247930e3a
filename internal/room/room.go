// ABOUTME: Per-room state machine: membership, admin promotion, permissions, cleanup
// ABOUTME: Grounded on rustyguts-bken's Room (clients map behind one RWMutex, snapshot-then-send broadcast)
package room

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/storage"
	"github.com/beatsync/beatsync-server/internal/wire"
)

// Sender is the minimal surface a Room needs from a connected client's
// channel: ordered send, and a close with reason. Satisfied by
// *session.Session; tests use a mock, mirroring the pack's DatagramSender
// test-double pattern.
type Sender interface {
	Send(msg any) error
	Close(code int, reason string)
}

// Origin and radius constants for the presence circle and the spatial loop's
// slow-moving listening source, per spec.md §4.5.1 and §4.5.5.
const (
	OriginX       = 50.0
	OriginY       = 50.0
	PresenceRadius = 25.0
)

// PendingLoadBarrier tracks clients that have confirmed they decoded the
// about-to-play buffer. At most one exists per Room at a time.
type PendingLoadBarrier struct {
	PlayAction  string
	InitiatorID string
	LoadedSet   map[string]struct{}
	Deadline    time.Time
	cancel      func()
}

// Room is the per-room state machine. All mutation goes through its
// exported methods, which serialize via mu; broadcasts are always sent
// after the lock is released, never while held, to avoid deadlocking with a
// session's own internal locking.
type Room struct {
	ID string

	mu          sync.RWMutex
	clients     map[string]*model.Client // all known, including disconnected
	sessions    map[string]Sender        // connected subset
	queue       []model.AudioSource
	playback    model.PlaybackState
	listening   model.Position
	permissions model.Permission
	volume      float64
	chat        []model.ChatMessage
	nextChatID  uint64
	barrier     *PendingLoadBarrier

	spatialOn     bool
	spatialCancel func()
	spatialTick   int64

	heartbeatCancel func()
	cleanupTimer    *time.Timer
	cleanupCancel   context.CancelFunc

	activeJobs int // in-flight SEARCH_MUSIC/STREAM_MUSIC provider calls

	blobStore storage.BlobStore
	logger    zerolog.Logger

	onEmpty func(roomID string) // registry cleanup hook
}

// New constructs an empty Room in its initial state.
func New(id string, blobStore storage.BlobStore, logger zerolog.Logger, onEmpty func(string)) *Room {
	return &Room{
		ID:          id,
		clients:     make(map[string]*model.Client),
		sessions:    make(map[string]Sender),
		playback:    model.InitialPlaybackState(),
		listening:   model.Position{X: OriginX, Y: OriginY},
		permissions: model.PermissionEveryone,
		volume:      1.0,
		blobStore:   blobStore,
		logger:      logger,
		onEmpty:     onEmpty,
	}
}

// AddClient enrolls sender as clientId/username's connected channel. Cancels
// any pending cleanup. If a record for clientId already exists (reconnect),
// its identity fields are restored; otherwise a fresh record is created with
// admin status true only if no other client is currently connected.
func (r *Room) AddClient(clientID, username string, sender Sender) {
	r.mu.Lock()

	r.cancelCleanupLocked()

	rec, existed := r.clients[clientID]
	if existed {
		rec.Username = username
	} else {
		rec = &model.Client{
			ClientID: clientID,
			Username: username,
			JoinedAt: time.Now().UnixMilli(),
			RTT:      0,
			IsAdmin:  len(r.sessions) == 0,
			Position: model.Position{X: OriginX, Y: OriginY - PresenceRadius},
		}
		r.clients[clientID] = rec
	}
	rec.LastHeartbeatAt = time.Now().UnixMilli()
	r.sessions[clientID] = sender

	r.repositionConnectedLocked()
	r.startHeartbeatSweepIfIdleLocked()

	r.mu.Unlock()

	r.broadcastClientChange()
	r.SendChatFullSyncTo(clientID)
}

// RemoveClient disconnects clientId, keeping its record for a future
// reconnect. Repositions remaining clients, promotes a new admin if none
// remain connected, drops the leaver from any pending load barrier, and
// schedules cleanup when the room becomes empty.
func (r *Room) RemoveClient(clientID string) {
	r.mu.Lock()

	delete(r.sessions, clientID)
	r.repositionConnectedLocked()

	if !r.anyAdminConnectedLocked() {
		r.promoteRandomAdminLocked()
	}

	var playMsg *wire.ScheduledActionMessage
	if r.barrier != nil {
		delete(r.barrier.LoadedSet, clientID)
		playMsg = r.maybeCommitBarrierLocked()
	}

	empty := len(r.sessions) == 0
	if empty {
		r.stopHeartbeatSweepLocked()
		r.scheduleCleanupLocked()
	}

	r.mu.Unlock()

	if playMsg != nil {
		r.broadcastToAll(*playMsg)
	}
	if !empty {
		r.broadcastClientChange()
	}
}

func (r *Room) anyAdminConnectedLocked() bool {
	for id := range r.sessions {
		if c, ok := r.clients[id]; ok && c.IsAdmin {
			return true
		}
	}
	return false
}

// promoteRandomAdminLocked promotes one connected client to admin, chosen
// uniformly at random. Per spec.md §9's open-question resolution, this is
// deliberately non-deterministic, unlike bken's "lowest remaining id".
func (r *Room) promoteRandomAdminLocked() {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}
	chosen := ids[rand.Intn(len(ids))]
	if c, ok := r.clients[chosen]; ok {
		c.IsAdmin = true
	}
}

// RequireCanMutate implements the mutation-authority gate: admins may always
// mutate; everyone else may only when the room's permission mode is EVERYONE.
func (r *Room) RequireCanMutate(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.permissions == model.PermissionEveryone {
		return true
	}
	c, ok := r.clients[clientID]
	return ok && c.IsAdmin
}

// repositionConnectedLocked arranges connected clients on a circle: a single
// client is centered, N>1 clients sit at angles 2*pi*i/N - pi/2 around the
// presence radius.
func (r *Room) repositionConnectedLocked() {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	n := len(ids)
	if n == 0 {
		return
	}
	if n == 1 {
		if c, ok := r.clients[ids[0]]; ok {
			c.Position = model.Position{X: OriginX, Y: OriginY}
		}
		return
	}
	for i, id := range ids {
		angle := 2*math.Pi*float64(i)/float64(n) - math.Pi/2
		if c, ok := r.clients[id]; ok {
			c.Position = model.Position{
				X: OriginX + PresenceRadius*math.Cos(angle),
				Y: OriginY + PresenceRadius*math.Sin(angle),
			}
		}
	}
}

// ReorderClients repositions connected clients on the presence circle in the
// given clientId order instead of map iteration order, then emits a
// one-shot spatial update so the new layout's gains take effect immediately.
func (r *Room) ReorderClients(order []string) {
	r.mu.Lock()
	n := len(order)
	for i, id := range order {
		if _, connected := r.sessions[id]; !connected {
			continue
		}
		c, ok := r.clients[id]
		if !ok {
			continue
		}
		if n == 1 {
			c.Position = model.Position{X: OriginX, Y: OriginY}
			continue
		}
		angle := 2*math.Pi*float64(i)/float64(n) - math.Pi/2
		c.Position = model.Position{
			X: OriginX + PresenceRadius*math.Cos(angle),
			Y: OriginY + PresenceRadius*math.Sin(angle),
		}
	}
	r.mu.Unlock()

	r.broadcastClientChange()
	r.EmitOneShotSpatialConfig()
}

// SetClientLocation records geo-IP metadata on a client for display, from a
// SEND_IP frame. Broadcasts the updated presence list.
func (r *Room) SetClientLocation(clientID string, loc model.Location) {
	r.mu.Lock()
	if c, ok := r.clients[clientID]; ok {
		c.Location = &loc
	}
	r.mu.Unlock()
	r.broadcastClientChange()
}

// SetAdmin lets an admin explicitly hand admin status to another client.
func (r *Room) SetAdmin(clientID string, isAdmin bool) {
	r.mu.Lock()
	if c, ok := r.clients[clientID]; ok {
		c.IsAdmin = isAdmin
	}
	r.mu.Unlock()
	r.broadcastClientChange()
}

// SetPlaybackControls changes the room's mutation-authority mode.
func (r *Room) SetPlaybackControls(perm model.Permission) {
	r.mu.Lock()
	r.permissions = perm
	r.mu.Unlock()
	r.broadcastRoomEvent(roomEventSetPlaybackControls(perm))
}

// BeginProviderJob marks one music-provider call (SEARCH_MUSIC or
// STREAM_MUSIC) as started and broadcasts the room's updated in-flight
// count. Callers must pair every call with EndProviderJob, typically via
// defer.
func (r *Room) BeginProviderJob() {
	r.mu.Lock()
	r.activeJobs++
	count := r.activeJobs
	r.mu.Unlock()
	r.broadcastToAll(wire.StreamJobUpdateMessage{Type: wire.OutStreamJobUpdate, ActiveJobCount: count})
}

// EndProviderJob marks one music-provider call as finished and broadcasts
// the room's updated in-flight count.
func (r *Room) EndProviderJob() {
	r.mu.Lock()
	r.activeJobs--
	count := r.activeJobs
	r.mu.Unlock()
	r.broadcastToAll(wire.StreamJobUpdateMessage{Type: wire.OutStreamJobUpdate, ActiveJobCount: count})
}

// ConnectedClientCount returns the number of currently connected sessions.
func (r *Room) ConnectedClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IsEmpty reports whether the room currently has zero connected sessions.
func (r *Room) IsEmpty() bool {
	return r.ConnectedClientCount() == 0
}

// snapshotSessionsRLock takes the read lock itself (callers must not already
// hold mu) and returns a copy of the connected session slice so callers write
// to the network only after the lock is released, per spec.md §9's "collect
// then send after unlock".
func (r *Room) snapshotSessionsRLock() []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sender, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Room) snapshotClientsRLock() []model.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Client, 0, len(r.sessions))
	for id := range r.sessions {
		if c, ok := r.clients[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}

func (r *Room) broadcastToAll(msg any) {
	targets := r.snapshotSessionsRLock()
	for _, s := range targets {
		_ = s.Send(msg)
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func (r *Room) unicastTo(clientID string, msg any) {
	r.mu.RLock()
	target, ok := r.sessions[clientID]
	r.mu.RUnlock()
	if ok {
		_ = target.Send(msg)
	}
}
