// ABOUTME: 100ms spatial audio tick: moves the listening source and broadcasts per-client gains
package room

import (
	"context"
	"math"
	"time"

	"github.com/beatsync/beatsync-server/internal/clock"
	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/spatial"
	"github.com/beatsync/beatsync-server/internal/wire"
)

const spatialTickInterval = 100 * time.Millisecond
const spatialRadius = 25.0
const spatialRampTime = 0.25

// StartSpatialAudio starts the 100ms ticker if not already running.
func (r *Room) StartSpatialAudio() {
	r.mu.Lock()
	if r.spatialOn {
		r.mu.Unlock()
		return
	}
	r.spatialOn = true
	ctx, cancel := context.WithCancel(context.Background())
	r.spatialCancel = cancel
	r.mu.Unlock()

	go r.runSpatialLoop(ctx)
}

// StopSpatialAudio cancels the ticker and broadcasts STOP_SPATIAL_AUDIO.
func (r *Room) StopSpatialAudio() {
	r.mu.Lock()
	if !r.spatialOn {
		r.mu.Unlock()
		return
	}
	r.spatialOn = false
	if r.spatialCancel != nil {
		r.spatialCancel()
		r.spatialCancel = nil
	}
	r.mu.Unlock()

	r.broadcastToAll(wire.ScheduledActionMessage{
		Type:                wire.OutScheduledAction,
		ScheduledAction:     wire.ActionStopSpatialAudio,
		ServerTimeToExecute: clock.NowMs(),
	})
}

func (r *Room) runSpatialLoop(ctx context.Context) {
	ticker := time.NewTicker(spatialTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.tickSpatial()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Room) tickSpatial() {
	r.mu.Lock()
	r.spatialTick++
	angle := float64(r.spatialTick) * math.Pi / 30
	r.listening = model.Position{
		X: OriginX + spatialRadius*math.Cos(angle),
		Y: OriginY + spatialRadius*math.Sin(angle),
	}
	msg := r.buildSpatialConfigLocked()
	r.mu.Unlock()

	r.broadcastToAll(msg)
}

// buildSpatialConfigLocked computes gains for every connected client from
// the current listening source. Caller holds mu.
func (r *Room) buildSpatialConfigLocked() wire.ScheduledActionMessage {
	gains := make(map[string]model.GainEntry, len(r.sessions))
	for id := range r.sessions {
		c, ok := r.clients[id]
		if !ok {
			continue
		}
		g := spatial.Gain(spatial.Point{X: c.Position.X, Y: c.Position.Y}, spatial.Point{X: r.listening.X, Y: r.listening.Y})
		gains[id] = model.GainEntry{Gain: g, RampTime: spatialRampTime}
	}
	return wire.ScheduledActionMessage{
		Type:                wire.OutScheduledAction,
		ScheduledAction:     wire.ActionSpatialConfig,
		ServerTimeToExecute: clock.ScheduledExecutionTime(r.maxConnectedRTTLocked(), 0),
		ListeningSource:     r.listening,
		Gains:               gains,
		RampTime:            spatialRampTime,
	}
}

// EmitOneShotSpatialConfig publishes a single SPATIAL_CONFIG update outside
// the regular tick, used after MOVE_CLIENT / SET_LISTENING_SOURCE /
// REORDER_CLIENT so static scenes still respond even when the loop is off.
func (r *Room) EmitOneShotSpatialConfig() {
	r.mu.Lock()
	msg := r.buildSpatialConfigLocked()
	r.mu.Unlock()
	r.broadcastToAll(msg)
}

// MoveClient updates a client's position (the wire decoder has already
// rejected positions outside the grid) and emits a one-shot spatial update.
func (r *Room) MoveClient(clientID string, pos model.Position) {
	r.mu.Lock()
	if c, ok := r.clients[clientID]; ok {
		c.Position = pos
	}
	r.mu.Unlock()
	r.EmitOneShotSpatialConfig()
}

// SetListeningSource updates the listening source directly (used by clients
// driving the source manually rather than via the slow circle) and emits a
// one-shot spatial update.
func (r *Room) SetListeningSource(pos model.Position) {
	r.mu.Lock()
	r.listening = pos
	r.mu.Unlock()
	r.EmitOneShotSpatialConfig()
}

// SetGlobalVolume clamps v to [0,1] and broadcasts a GLOBAL_VOLUME_CONFIG
// scheduled immediately (serverTimeToExecute=now).
func (r *Room) SetGlobalVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r.mu.Lock()
	r.volume = v
	r.mu.Unlock()

	r.broadcastToAll(wire.ScheduledActionMessage{
		Type:                wire.OutScheduledAction,
		ScheduledAction:     wire.ActionGlobalVolumeConfig,
		ServerTimeToExecute: clock.NowMs(),
		Volume:              v,
	})
}
