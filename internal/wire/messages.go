// ABOUTME: Tagged-union wire message shapes for the inbound/outbound closed enums
// ABOUTME: Generalizes the teacher's Message{Type,Payload} envelope to beatsync's ~23 types
package wire

import "github.com/beatsync/beatsync-server/internal/model"

// InboundType is the discriminator of a client-to-server frame.
type InboundType string

const (
	InNTPRequest          InboundType = "NTP_REQUEST"
	InPlay                InboundType = "PLAY"
	InPause               InboundType = "PAUSE"
	InSync                InboundType = "SYNC"
	InStartSpatialAudio   InboundType = "START_SPATIAL_AUDIO"
	InStopSpatialAudio    InboundType = "STOP_SPATIAL_AUDIO"
	InReorderClient       InboundType = "REORDER_CLIENT"
	InSetListeningSource  InboundType = "SET_LISTENING_SOURCE"
	InMoveClient          InboundType = "MOVE_CLIENT"
	InSetAdmin            InboundType = "SET_ADMIN"
	InSetPlaybackControls InboundType = "SET_PLAYBACK_CONTROLS"
	InSetGlobalVolume     InboundType = "SET_GLOBAL_VOLUME"
	InSendChatMessage     InboundType = "SEND_CHAT_MESSAGE"
	InSendIP              InboundType = "SEND_IP"
	InAudioSourceLoaded   InboundType = "AUDIO_SOURCE_LOADED"
	InLoadDefaultTracks   InboundType = "LOAD_DEFAULT_TRACKS"
	InDeleteAudioSources  InboundType = "DELETE_AUDIO_SOURCES"
	InSearchMusic         InboundType = "SEARCH_MUSIC"
	InStreamMusic         InboundType = "STREAM_MUSIC"
)

// OutboundType is the discriminator of a server-to-client frame.
type OutboundType string

const (
	OutScheduledAction  OutboundType = "SCHEDULED_ACTION"
	OutRoomEvent        OutboundType = "ROOM_EVENT"
	OutStreamJobUpdate  OutboundType = "STREAM_JOB_UPDATE"
	OutError            OutboundType = "ERROR"
	OutNTPReply         OutboundType = "NTP_RESPONSE"
)

// ScheduledAction is the discriminator inside a SCHEDULED_ACTION broadcast.
type ScheduledAction string

const (
	ActionPlay              ScheduledAction = "PLAY"
	ActionPause             ScheduledAction = "PAUSE"
	ActionSpatialConfig     ScheduledAction = "SPATIAL_CONFIG"
	ActionStopSpatialAudio  ScheduledAction = "STOP_SPATIAL_AUDIO"
	ActionGlobalVolumeConfig ScheduledAction = "GLOBAL_VOLUME_CONFIG"
)

// RoomEventKind is the discriminator inside a ROOM_EVENT broadcast.
type RoomEventKind string

const (
	EventClientChange        RoomEventKind = "CLIENT_CHANGE"
	EventSetAudioSources      RoomEventKind = "SET_AUDIO_SOURCES"
	EventSetPlaybackControls  RoomEventKind = "SET_PLAYBACK_CONTROLS"
	EventChatUpdate           RoomEventKind = "CHAT_UPDATE"
	EventLoadAudioSource      RoomEventKind = "LOAD_AUDIO_SOURCE"
)

// Envelope is the outer shape every inbound frame shares: only the type tag
// is read eagerly; the rest of the body is decoded once Type is known.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound payload shapes.

// NTPRequestPayload carries the client's send timestamp and, optionally, its
// most recently computed round-trip time so the server can fold it into the
// room's RTT EMA for scheduling (spec.md §4.2: "periodically reports its
// current rtt to the server so the server can schedule").
type NTPRequestPayload struct {
	T0  int64 `json:"t0"`
	RTT int64 `json:"rtt,omitempty"`
}

type PlayPayload struct {
	AudioSource string `json:"audioSource"`
}

type PausePayload struct{}

type SyncPayload struct{}

type StartSpatialAudioPayload struct{}

type StopSpatialAudioPayload struct{}

// ReorderClientPayload carries the new presence-circle ordering of connected
// clientIds (affects positioning only, not admin/authority).
type ReorderClientPayload struct {
	ClientIDs []string `json:"clientIds"`
}

type SetListeningSourcePayload struct {
	Position model.Position `json:"position"`
}

type MoveClientPayload struct {
	Position model.Position `json:"position"`
}

type SetAdminPayload struct {
	ClientID string `json:"clientId"`
	IsAdmin  bool   `json:"isAdmin"`
}

type SetPlaybackControlsPayload struct {
	Permissions model.Permission `json:"permissions"`
}

type SetGlobalVolumePayload struct {
	Volume float64 `json:"volume"`
}

type SendChatMessagePayload struct {
	Text string `json:"text"`
}

type SendIPPayload struct {
	Location model.Location `json:"location"`
}

type AudioSourceLoadedPayload struct {
	URL string `json:"url"`
}

type LoadDefaultTracksPayload struct{}

type DeleteAudioSourcesPayload struct {
	URLs []string `json:"urls"`
}

type SearchMusicPayload struct {
	Query string `json:"query"`
}

type StreamMusicPayload struct {
	ID string `json:"id"`
}

// Outbound payload shapes.

type ScheduledActionMessage struct {
	Type                OutboundType    `json:"type"`
	ScheduledAction     ScheduledAction `json:"scheduledAction"`
	ServerTimeToExecute int64           `json:"serverTimeToExecute"`

	AudioSource      string                      `json:"audioSource,omitempty"`
	TrackTimeSeconds float64                     `json:"trackTimeSeconds,omitempty"`
	ListeningSource  model.Position              `json:"listeningSource,omitempty"`
	Gains            map[string]model.GainEntry  `json:"gains,omitempty"`
	RampTime         float64                     `json:"rampTime,omitempty"`
	Volume           float64                     `json:"volume,omitempty"`
}

type RoomEventMessage struct {
	Type     OutboundType   `json:"type"`
	Event    RoomEventKind  `json:"event"`

	Clients     []model.Client      `json:"clients,omitempty"`
	Sources     []model.AudioSource `json:"sources,omitempty"`
	Permissions model.Permission    `json:"permissions,omitempty"`
	Messages    []model.ChatMessage `json:"messages,omitempty"`
	IsFullSync  bool                `json:"isFullSync,omitempty"`
	NewestID    uint64              `json:"newestId,omitempty"`
	AudioSource string              `json:"audioSource,omitempty"`
}

type StreamJobUpdateMessage struct {
	Type           OutboundType `json:"type"`
	ActiveJobCount int          `json:"activeJobCount"`
}

// OutSearchResults and OutStreamResolved are ROOM_EVENT-adjacent replies
// added for the music provider adapter (SPEC_FULL.md §4.13); they are not
// broadcast, only unicast back to the requester.
const (
	OutSearchResults  OutboundType = "SEARCH_RESULTS"
	OutStreamResolved OutboundType = "STREAM_RESOLVED"
)

type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	StreamURL string `json:"streamUrl,omitempty"`
}

type SearchResultsMessage struct {
	Type   OutboundType `json:"type"`
	Tracks []Track      `json:"tracks"`
}

type StreamResolvedMessage struct {
	Type  OutboundType `json:"type"`
	Track Track        `json:"track"`
}

type ErrorMessage struct {
	Type    OutboundType `json:"type"`
	Message string       `json:"message"`
}

type NTPReplyMessage struct {
	Type OutboundType `json:"type"`
	T0   int64        `json:"t0"`
	T1   int64        `json:"t1"`
	T2   int64        `json:"t2"`
}
