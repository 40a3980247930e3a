// ABOUTME: Routes validated requests to handlers via a type->handler table, not a switch
// ABOUTME: Replaces both the teacher's handleClientMessage switch and bken's processControl switch
package dispatcher

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/beatsync/beatsync-server/internal/clock"
	"github.com/beatsync/beatsync-server/internal/logging"
	"github.com/beatsync/beatsync-server/internal/musicprovider"
	"github.com/beatsync/beatsync-server/internal/registry"
	"github.com/beatsync/beatsync-server/internal/room"
	"github.com/beatsync/beatsync-server/internal/session"
	"github.com/beatsync/beatsync-server/internal/wire"
)

// Handler processes one validated request for a given session. t1 is only
// meaningful for NTP_REQUEST; every other handler ignores it.
type Handler func(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64)

// Dispatcher holds process-wide collaborators every handler needs and the
// type->handler routing table built once at construction time.
type Dispatcher struct {
	Registry *registry.Registry
	Provider *musicprovider.Client
	Logger   zerolog.Logger

	table map[wire.InboundType]Handler
}

// New builds the dispatcher and its routing table.
func New(reg *registry.Registry, provider *musicprovider.Client, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{Registry: reg, Provider: provider, Logger: logger}
	d.table = map[wire.InboundType]Handler{
		wire.InNTPRequest:          handleNTPRequest,
		wire.InPlay:                requireCanMutate(handlePlay),
		wire.InPause:               requireCanMutate(handlePause),
		wire.InSync:                requireRoom(handleSync),
		wire.InStartSpatialAudio:   requireCanMutate(handleStartSpatialAudio),
		wire.InStopSpatialAudio:    requireCanMutate(handleStopSpatialAudio),
		wire.InReorderClient:       requireRoom(handleReorderClient),
		wire.InSetListeningSource:  requireCanMutate(handleSetListeningSource),
		wire.InMoveClient:          requireRoom(handleMoveClient),
		wire.InSetAdmin:            requireCanMutate(handleSetAdmin),
		wire.InSetPlaybackControls: requireCanMutate(handleSetPlaybackControls),
		wire.InSetGlobalVolume:     requireCanMutate(handleSetGlobalVolume),
		wire.InSendChatMessage:     requireRoom(handleSendChatMessage),
		wire.InSendIP:              requireRoom(handleSendIP),
		wire.InAudioSourceLoaded:   requireRoom(handleAudioSourceLoaded),
		wire.InLoadDefaultTracks:   requireCanMutate(handleLoadDefaultTracks),
		wire.InDeleteAudioSources:  requireCanMutate(handleDeleteAudioSources),
		wire.InSearchMusic:         requireRoom(handleSearchMusic),
		wire.InStreamMusic:         requireRoom(handleStreamMusic),
	}
	return d
}

// Dispatch looks up the handler for req.Type and runs it. Handler errors are
// logged and swallowed per spec.md §4.7 — the socket is never closed from
// here; only C3 validation failures produce an ERROR frame, and Decode
// already returned that before Dispatch is ever called.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, req *wire.Request, t1 int64) {
	h, ok := d.table[req.Type]
	if !ok {
		logging.L(ctx, d.Logger).Warn().Str("type", string(req.Type)).Msg("no handler registered")
		return
	}
	h(ctx, d, sess, req, t1)
}

// requireRoom wraps next so it only runs once sess has an enrolled room that
// exists in the registry; otherwise it drops silently with a log line, per
// spec.md §4.7's authorization category.
func requireRoom(next Handler) Handler {
	return func(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
		if sess.RoomID == "" {
			logging.L(ctx, d.Logger).Info().Str("client_id", sess.ClientID).Msg("requireRoom denied: no enrolled room")
			return
		}
		if _, ok := d.Registry.GetRoom(sess.RoomID); !ok {
			logging.L(ctx, d.Logger).Info().Str("room_id", sess.RoomID).Msg("requireRoom denied: room not found")
			return
		}
		next(ctx, d, sess, req, t1)
	}
}

// requireCanMutate composes requireRoom with the admin-or-EVERYONE gate.
func requireCanMutate(next Handler) Handler {
	return requireRoom(func(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
		r, _ := d.Registry.GetRoom(sess.RoomID)
		if !r.RequireCanMutate(sess.ClientID) {
			logging.L(ctx, d.Logger).Info().Str("client_id", sess.ClientID).Msg("requireCanMutate denied")
			return
		}
		next(ctx, d, sess, req, t1)
	})
}

func roomOf(d *Dispatcher, sess *session.Session) *room.Room {
	r, _ := d.Registry.GetRoom(sess.RoomID)
	return r
}

func handleNTPRequest(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.NTPRequestPayload)
	reply := clock.RespondNTP(p.T0, t1)
	_ = sess.Send(wire.NTPReplyMessage{Type: wire.OutNTPReply, T0: reply.T0, T1: reply.T1, T2: reply.T2})

	if sess.RoomID == "" {
		return
	}
	if r, ok := d.Registry.GetRoom(sess.RoomID); ok {
		r.OnHeartbeat(sess.ClientID)
		if p.RTT > 0 {
			r.OnRTTSample(sess.ClientID, p.RTT, clock.SmoothRTT)
		}
	}
}

func handlePlay(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.PlayPayload)
	roomOf(d, sess).HandlePlay(sess.ClientID, p.AudioSource)
}

func handlePause(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	roomOf(d, sess).HandlePause()
}

func handleSync(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	roomOf(d, sess).HandleSync(sess.ClientID)
}

func handleStartSpatialAudio(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	roomOf(d, sess).StartSpatialAudio()
}

func handleStopSpatialAudio(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	roomOf(d, sess).StopSpatialAudio()
}

func handleReorderClient(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.ReorderClientPayload)
	roomOf(d, sess).ReorderClients(p.ClientIDs)
}

func handleSetListeningSource(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SetListeningSourcePayload)
	roomOf(d, sess).SetListeningSource(p.Position)
}

func handleMoveClient(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.MoveClientPayload)
	roomOf(d, sess).MoveClient(sess.ClientID, p.Position)
}

func handleSetAdmin(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SetAdminPayload)
	roomOf(d, sess).SetAdmin(p.ClientID, p.IsAdmin)
}

func handleSetPlaybackControls(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SetPlaybackControlsPayload)
	roomOf(d, sess).SetPlaybackControls(p.Permissions)
}

func handleSetGlobalVolume(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SetGlobalVolumePayload)
	roomOf(d, sess).SetGlobalVolume(p.Volume)
}

func handleSendChatMessage(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SendChatMessagePayload)
	roomOf(d, sess).SendChatMessage(sess.ClientID, sess.Username, "", p.Text)
}

func handleSendIP(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SendIPPayload)
	roomOf(d, sess).SetClientLocation(sess.ClientID, p.Location)
}

func handleAudioSourceLoaded(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.AudioSourceLoadedPayload)
	roomOf(d, sess).OnAudioSourceLoaded(sess.ClientID, p.URL)
}

func handleLoadDefaultTracks(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	roomOf(d, sess).SetAudioSources(DefaultTrackURLs)
}

func handleDeleteAudioSources(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.DeleteAudioSourcesPayload)
	roomOf(d, sess).DeleteAudioSources(ctx, p.URLs)
}

func handleSearchMusic(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.SearchMusicPayload)
	if !d.Provider.Enabled() {
		return
	}
	r := roomOf(d, sess)
	r.BeginProviderJob()
	defer r.EndProviderJob()

	tracks, err := d.Provider.Search(ctx, p.Query)
	if err != nil {
		logging.L(ctx, d.Logger).Warn().Err(err).Msg("music search failed")
		return
	}
	_ = sess.Send(wire.SearchResultsMessage{Type: wire.OutSearchResults, Tracks: toWireTracks(tracks)})
}

func handleStreamMusic(ctx context.Context, d *Dispatcher, sess *session.Session, req *wire.Request, t1 int64) {
	p := req.Payload.(wire.StreamMusicPayload)
	if !d.Provider.Enabled() {
		return
	}
	r := roomOf(d, sess)
	r.BeginProviderJob()
	defer r.EndProviderJob()

	track, err := d.Provider.Stream(ctx, p.ID)
	if err != nil {
		logging.L(ctx, d.Logger).Warn().Err(err).Msg("music stream resolve failed")
		return
	}
	_ = sess.Send(wire.StreamResolvedMessage{Type: wire.OutStreamResolved, Track: toWireTrack(track)})
}

func toWireTracks(tracks []musicprovider.Track) []wire.Track {
	out := make([]wire.Track, len(tracks))
	for i, t := range tracks {
		out[i] = toWireTrack(t)
	}
	return out
}

func toWireTrack(t musicprovider.Track) wire.Track {
	return wire.Track{ID: t.ID, Title: t.Title, Artist: t.Artist, StreamURL: t.StreamURL}
}

// DefaultTrackURLs is the fallback track list for LOAD_DEFAULT_TRACKS,
// also served verbatim by the HTTP surface's GET /default.
var DefaultTrackURLs = []string{
	"https://cdn.beatsync.example/defaults/track-1.mp3",
	"https://cdn.beatsync.example/defaults/track-2.mp3",
	"https://cdn.beatsync.example/defaults/track-3.mp3",
}
