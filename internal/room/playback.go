// ABOUTME: Scheduled play/pause state machine, the audio-decode load barrier, and late-join sync
// ABOUTME: New subsystem built from spec.md §4.5.2-3, using the teacher's ticker idiom for the deadline timer
package room

import (
	"context"
	"strings"
	"time"

	"github.com/beatsync/beatsync-server/internal/clock"
	"github.com/beatsync/beatsync-server/internal/model"
	"github.com/beatsync/beatsync-server/internal/wire"
)

const loadBarrierDeadline = 3000 * time.Millisecond

// HandlePlay validates audioSource against the queue, broadcasts a
// LOAD_AUDIO_SOURCE instruction, and opens a load barrier that commits the
// PLAY either when every connected client confirms decode or on timeout.
func (r *Room) HandlePlay(initiatorID, audioSource string) {
	r.mu.Lock()
	if !r.queueContainsLocked(audioSource) {
		r.mu.Unlock()
		r.logger.Warn().Str("audio_source", audioSource).Msg("play referenced url not in queue")
		return
	}

	r.cancelBarrierLocked()

	ctx, cancel := context.WithCancel(context.Background())
	barrier := &PendingLoadBarrier{
		PlayAction:  audioSource,
		InitiatorID: initiatorID,
		LoadedSet:   map[string]struct{}{initiatorID: {}},
		Deadline:    time.Now().Add(loadBarrierDeadline),
		cancel:      cancel,
	}
	r.barrier = barrier
	r.mu.Unlock()

	r.broadcastRoomEvent(wire.RoomEventMessage{
		Type:        wire.OutRoomEvent,
		Event:       wire.EventLoadAudioSource,
		AudioSource: audioSource,
	})

	// The initiator is already loaded; if it is the only connected client
	// the barrier is complete and the PLAY commits right away.
	r.mu.Lock()
	var msg *wire.ScheduledActionMessage
	if r.barrier == barrier {
		msg = r.maybeCommitBarrierLocked()
	}
	r.mu.Unlock()
	if msg != nil {
		r.broadcastToAll(*msg)
		return
	}

	go r.runBarrierDeadline(ctx, barrier)
}

func (r *Room) runBarrierDeadline(ctx context.Context, barrier *PendingLoadBarrier) {
	timer := time.NewTimer(loadBarrierDeadline)
	defer timer.Stop()
	select {
	case <-timer.C:
		r.mu.Lock()
		var msg *wire.ScheduledActionMessage
		if r.barrier == barrier {
			msg = r.commitPlayLocked()
		}
		r.mu.Unlock()
		if msg != nil {
			r.broadcastToAll(*msg)
		}
	case <-ctx.Done():
	}
}

// OnAudioSourceLoaded records that clientID has confirmed decode of url and
// commits the play immediately if every connected client has now confirmed.
func (r *Room) OnAudioSourceLoaded(clientID, url string) {
	r.mu.Lock()
	var msg *wire.ScheduledActionMessage
	if r.barrier != nil && r.barrier.PlayAction == url {
		r.barrier.LoadedSet[clientID] = struct{}{}
		msg = r.maybeCommitBarrierLocked()
	}
	r.mu.Unlock()
	if msg != nil {
		r.broadcastToAll(*msg)
	}
}

// maybeCommitBarrierLocked commits the pending play once every connected
// client id is present in the barrier's loaded set. Caller holds mu.
func (r *Room) maybeCommitBarrierLocked() *wire.ScheduledActionMessage {
	if r.barrier == nil {
		return nil
	}
	for id := range r.sessions {
		if _, ok := r.barrier.LoadedSet[id]; !ok {
			return nil
		}
	}
	return r.commitPlayLocked()
}

// commitPlayLocked finalizes the pending barrier, updating playback state,
// and returns the PLAY broadcast to send once the caller has unlocked (or
// nil if there was nothing to commit or the track was removed first). Caller
// holds mu.
func (r *Room) commitPlayLocked() *wire.ScheduledActionMessage {
	barrier := r.barrier
	r.barrier = nil
	if barrier == nil {
		return nil
	}
	if barrier.cancel != nil {
		barrier.cancel()
	}
	if !r.queueContainsLocked(barrier.PlayAction) {
		r.logger.Warn().Str("audio_source", barrier.PlayAction).Msg("play aborted: track removed before commit")
		return nil
	}

	maxRTT := r.maxConnectedRTTLocked()
	serverTimeToExecute := clock.ScheduledExecutionTime(maxRTT, 0)
	r.playback = model.PlaybackState{
		Type:                model.PlaybackPlaying,
		AudioSource:         barrier.PlayAction,
		ServerTimeToExecute: serverTimeToExecute,
		TrackPositionSec:    0,
	}

	return &wire.ScheduledActionMessage{
		Type:                wire.OutScheduledAction,
		ScheduledAction:     wire.ActionPlay,
		ServerTimeToExecute: serverTimeToExecute,
		AudioSource:         barrier.PlayAction,
	}
}

func (r *Room) maxConnectedRTTLocked() int64 {
	var max int64
	for id := range r.sessions {
		if c, ok := r.clients[id]; ok && c.RTT > max {
			max = c.RTT
		}
	}
	return max
}

func (r *Room) cancelBarrierLocked() {
	if r.barrier != nil && r.barrier.cancel != nil {
		r.barrier.cancel()
	}
	r.barrier = nil
}

// HandlePause computes a scheduled execution time and transitions to paused,
// tolerating an empty audioSource if the current track was deleted.
func (r *Room) HandlePause() {
	r.mu.Lock()
	r.cancelBarrierLocked()
	maxRTT := r.maxConnectedRTTLocked()
	serverTimeToExecute := clock.ScheduledExecutionTime(maxRTT, 0)
	r.playback.Type = model.PlaybackPaused
	r.playback.ServerTimeToExecute = serverTimeToExecute
	audioSource := r.playback.AudioSource
	r.mu.Unlock()

	r.broadcastToAll(wire.ScheduledActionMessage{
		Type:                wire.OutScheduledAction,
		ScheduledAction:     wire.ActionPause,
		ServerTimeToExecute: serverTimeToExecute,
		AudioSource:         audioSource,
	})
}

const syncExtraMs = 1500

// HandleSync answers a late joiner's SYNC request. No-op while paused;
// while playing, unicasts a PLAY scheduled action with a resume position
// computed from elapsed time since playbackStartedAt plus schedule extra.
func (r *Room) HandleSync(clientID string) {
	r.mu.RLock()
	playback := r.playback
	maxRTT := r.maxConnectedRTTLocked()
	r.mu.RUnlock()

	if playback.Type != model.PlaybackPlaying {
		return
	}

	serverTimeToExecute := clock.ScheduledExecutionTime(maxRTT, syncExtraMs)
	elapsedMs := float64(serverTimeToExecute - playback.ServerTimeToExecute)
	resumePosition := playback.TrackPositionSec + elapsedMs/1000.0

	r.unicastTo(clientID, wire.ScheduledActionMessage{
		Type:                wire.OutScheduledAction,
		ScheduledAction:     wire.ActionPlay,
		ServerTimeToExecute: serverTimeToExecute,
		AudioSource:         playback.AudioSource,
		TrackTimeSeconds:    resumePosition,
	})
}

// SetAudioSources replaces the room's queue wholesale and broadcasts the
// updated set.
func (r *Room) SetAudioSources(urls []string) {
	r.mu.Lock()
	seen := make(map[string]struct{}, len(urls))
	queue := make([]model.AudioSource, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		queue = append(queue, model.AudioSource{URL: u})
	}
	r.queue = queue
	r.mu.Unlock()
	r.broadcastSetAudioSources()
}

// AddAudioSource appends one url to the queue, ignoring it if already
// present, and broadcasts the updated set. Used by upload-complete.
func (r *Room) AddAudioSource(url string) {
	r.mu.Lock()
	if !r.queueContainsLocked(url) {
		r.queue = append(r.queue, model.AudioSource{URL: url})
	}
	r.mu.Unlock()
	r.broadcastSetAudioSources()
}

// RemoveAudioSources removes urls from the queue by set-difference. If the
// currently-playing url is removed, playback resets to initial.
func (r *Room) RemoveAudioSources(urls []string) {
	remove := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		remove[u] = struct{}{}
	}

	r.mu.Lock()
	kept := make([]model.AudioSource, 0, len(r.queue))
	for _, src := range r.queue {
		if _, drop := remove[src.URL]; !drop {
			kept = append(kept, src)
		}
	}
	r.queue = kept

	if _, dropped := remove[r.playback.AudioSource]; dropped && r.playback.Type == model.PlaybackPlaying {
		r.playback = model.InitialPlaybackState()
	}
	r.mu.Unlock()

	r.broadcastSetAudioSources()
}

// DeleteAudioSources attempts to delete the underlying blobs for urls whose
// path looks like it belongs to this room, then removes from the queue only
// the urls whose blob delete succeeded or that were never blob-owned. The
// storage key is the part after /blobs/ when the url has that segment, and
// otherwise the part starting at room-<id>/.
func (r *Room) DeleteAudioSources(ctx context.Context, urls []string) {
	prefix := "/room-" + r.ID + "/"
	var toRemove []string
	for _, u := range urls {
		if !strings.Contains(u, prefix) {
			toRemove = append(toRemove, u)
			continue
		}
		key, ok := blobKeyFromURL(u)
		if !ok {
			key = u[strings.Index(u, prefix)+1:]
		}
		if err := r.blobStore.DeleteByPrefix(ctx, key); err != nil {
			r.logger.Error().Err(err).Str("url", u).Msg("blob delete failed, keeping in queue")
			continue
		}
		toRemove = append(toRemove, u)
	}
	if len(toRemove) > 0 {
		r.RemoveAudioSources(toRemove)
	}
}

// blobKeyFromURL recovers the storage key a BlobStore understands from a
// URL minted by PresignUpload, which always routes uploads under /blobs/
// (see localdisk.go) regardless of scheme or host.
func blobKeyFromURL(u string) (string, bool) {
	const marker = "/blobs/"
	idx := strings.Index(u, marker)
	if idx == -1 {
		return "", false
	}
	return u[idx+len(marker):], true
}

func (r *Room) queueContainsLocked(url string) bool {
	for _, src := range r.queue {
		if src.URL == url {
			return true
		}
	}
	return false
}
