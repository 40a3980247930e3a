package room

import (
	"testing"
	"time"

	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/wire"
)

func TestStartSpatialAudioTicksAndBroadcastsConfig(t *testing.T) {
	r := newTestRoom()
	a := &mockSender{}
	r.AddClient("A", "alice", a)
	a.messages()

	r.StartSpatialAudio()
	defer r.StopSpatialAudio()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range a.messages() {
			if sam, ok := m.(wire.ScheduledActionMessage); ok && sam.ScheduledAction == wire.ActionSpatialConfig {
				if len(sam.Gains) != 1 {
					t.Fatalf("expected one gain entry for the single connected client, got %d", len(sam.Gains))
				}
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected at least one SPATIAL_CONFIG tick within 2s")
}

func TestStartSpatialAudioIsIdempotent(t *testing.T) {
	r := newTestRoom()
	r.StartSpatialAudio()
	firstCancel := r.spatialCancel
	r.StartSpatialAudio()
	defer r.StopSpatialAudio()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.spatialCancel == nil {
		t.Fatal("expected spatial loop to still be running")
	}
	_ = firstCancel
}

func TestStopSpatialAudioBroadcastsStop(t *testing.T) {
	r := newTestRoom()
	a := &mockSender{}
	r.AddClient("A", "alice", a)
	r.StartSpatialAudio()
	a.messages()

	r.StopSpatialAudio()

	found := false
	for _, m := range a.messages() {
		if sam, ok := m.(wire.ScheduledActionMessage); ok && sam.ScheduledAction == wire.ActionStopSpatialAudio {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a STOP_SPATIAL_AUDIO broadcast")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.spatialOn {
		t.Fatal("expected spatialOn to be false after StopSpatialAudio")
	}
}

func TestMoveClientEmitsOneShotSpatialConfigWithoutTicker(t *testing.T) {
	r := newTestRoom()
	a := &mockSender{}
	r.AddClient("A", "alice", a)
	a.messages()

	r.MoveClient("A", model.Position{X: 10, Y: 10})

	found := false
	for _, m := range a.messages() {
		if sam, ok := m.(wire.ScheduledActionMessage); ok && sam.ScheduledAction == wire.ActionSpatialConfig {
			found = true
		}
	}
	if !found {
		t.Fatal("expected MOVE_CLIENT to emit a one-shot SPATIAL_CONFIG even with the ticker stopped")
	}
}
