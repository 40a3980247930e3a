// ABOUTME: Heartbeat sweeper (disconnect idle sessions) and grace-period cleanup scheduling
package room

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// SteadyIntervalMs is how often the heartbeat sweeper runs.
const SteadyIntervalMs = 5000

// ResponseTimeoutMs is the liveness threshold: if a connected client hasn't
// sent an NTP request in this long, its session is closed.
const ResponseTimeoutMs = 15000

// CleanupGraceMs is the default grace period before a fully-empty room is
// handed to the registry's cleanup hook. cmd/beatsync-server overwrites it
// from config at startup.
var CleanupGraceMs int64 = 60000

// OnHeartbeat updates lastHeartbeatAt for clientID; called on every received
// NTP_REQUEST, per spec.md §4.2.
func (r *Room) OnHeartbeat(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientID]; ok {
		c.LastHeartbeatAt = nowMs()
	}
}

// OnRTTSample smooths clientID's RTT with the new sample via the room's EMA.
func (r *Room) OnRTTSample(clientID string, sample int64, smooth func(prev, sample int64) int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[clientID]; ok {
		c.RTT = smooth(c.RTT, sample)
	}
}

func (r *Room) startHeartbeatSweepIfIdleLocked() {
	if r.heartbeatCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.heartbeatCancel = cancel
	go r.runHeartbeatSweep(ctx)
}

func (r *Room) stopHeartbeatSweepLocked() {
	if r.heartbeatCancel != nil {
		r.heartbeatCancel()
		r.heartbeatCancel = nil
	}
}

func (r *Room) runHeartbeatSweep(ctx context.Context) {
	ticker := time.NewTicker(SteadyIntervalMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepIdleSessions()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Room) sweepIdleSessions() {
	now := nowMs()
	r.mu.RLock()
	var stale []string
	for id, c := range r.clients {
		if _, connected := r.sessions[id]; !connected {
			continue
		}
		if now-c.LastHeartbeatAt > ResponseTimeoutMs {
			stale = append(stale, id)
		}
	}
	targets := make(map[string]Sender, len(stale))
	for _, id := range stale {
		if s, ok := r.sessions[id]; ok {
			targets[id] = s
		}
	}
	r.mu.RUnlock()

	for id, s := range targets {
		s.Close(websocket.CloseNormalClosure, "Connection timeout")
		r.RemoveClient(id)
	}
}

func (r *Room) cancelCleanupLocked() {
	if r.cleanupCancel != nil {
		r.cleanupCancel()
		r.cleanupCancel = nil
	}
	r.cleanupTimer = nil
}

func (r *Room) scheduleCleanupLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cleanupCancel = cancel
	go r.runCleanupTimer(ctx)
}

func (r *Room) runCleanupTimer(ctx context.Context) {
	timer := time.NewTimer(time.Duration(CleanupGraceMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		r.cleanup()
	case <-ctx.Done():
	}
}

// cleanup stops timers and asks the storage collaborator to delete every
// blob under this room's prefix. Invoked once the grace period elapses with
// zero connected clients.
func (r *Room) cleanup() {
	r.mu.Lock()
	stillEmpty := len(r.sessions) == 0
	if stillEmpty {
		r.stopHeartbeatSweepLocked()
		if r.spatialCancel != nil {
			r.spatialCancel()
			r.spatialCancel = nil
		}
		r.spatialOn = false
	}
	r.mu.Unlock()
	if !stillEmpty {
		return
	}

	ctx := context.Background()
	if err := r.blobStore.DeleteByPrefix(ctx, "room-"+r.ID); err != nil {
		r.logger.Error().Err(err).Str("room_id", r.ID).Msg("cleanup blob delete failed")
	}
	if r.onEmpty != nil {
		r.onEmpty(r.ID)
	}
}
