// ABOUTME: Decodes raw frame bytes into a validated inbound request or an ERROR frame
// ABOUTME: Generalizes the teacher's per-type unmarshal switch into one closed-enum table
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/beatsync/beatsync-server/internal/model"
)

// ErrValidation is returned by Decode when a frame fails schema validation;
// the caller should reply with an ERROR frame and drop it, per spec.md §4.3.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return e.Reason
}

// Request is a decoded, validated inbound frame: the discriminator plus the
// concrete payload as an `any` the dispatcher type-switches on.
type Request struct {
	Type    InboundType
	Payload any
}

// Decode parses raw and validates it against the closed inbound enum and
// spec.md's field-level constraints (position in-grid, volume in [0,1],
// non-empty chat text). Any failure returns *ErrValidation.
func Decode(raw []byte) (*Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ErrValidation{Reason: "Invalid message format"}
	}

	switch InboundType(env.Type) {
	case InNTPRequest:
		var p NTPRequestPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InNTPRequest, Payload: p}, nil

	case InPlay:
		var p PlayPayload
		if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.AudioSource) == "" {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InPlay, Payload: p}, nil

	case InPause:
		return &Request{Type: InPause, Payload: PausePayload{}}, nil

	case InSync:
		return &Request{Type: InSync, Payload: SyncPayload{}}, nil

	case InStartSpatialAudio:
		return &Request{Type: InStartSpatialAudio, Payload: StartSpatialAudioPayload{}}, nil

	case InStopSpatialAudio:
		return &Request{Type: InStopSpatialAudio, Payload: StopSpatialAudioPayload{}}, nil

	case InReorderClient:
		var p ReorderClientPayload
		if err := json.Unmarshal(raw, &p); err != nil || len(p.ClientIDs) == 0 {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InReorderClient, Payload: p}, nil

	case InSetListeningSource:
		var p SetListeningSourcePayload
		if err := json.Unmarshal(raw, &p); err != nil || !validPosition(p.Position) {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSetListeningSource, Payload: p}, nil

	case InMoveClient:
		var p MoveClientPayload
		if err := json.Unmarshal(raw, &p); err != nil || !validPosition(p.Position) {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InMoveClient, Payload: p}, nil

	case InSetAdmin:
		var p SetAdminPayload
		if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.ClientID) == "" {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSetAdmin, Payload: p}, nil

	case InSetPlaybackControls:
		var p SetPlaybackControlsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		if p.Permissions != model.PermissionEveryone && p.Permissions != model.PermissionAdminOnly {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSetPlaybackControls, Payload: p}, nil

	case InSetGlobalVolume:
		var p SetGlobalVolumePayload
		if err := json.Unmarshal(raw, &p); err != nil || p.Volume < 0 || p.Volume > 1 {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSetGlobalVolume, Payload: p}, nil

	case InSendChatMessage:
		var p SendChatMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.Text) == "" {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		if len(p.Text) > MaxChatMessageLength {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSendChatMessage, Payload: p}, nil

	case InSendIP:
		var p SendIPPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSendIP, Payload: p}, nil

	case InAudioSourceLoaded:
		var p AudioSourceLoadedPayload
		if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.URL) == "" {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InAudioSourceLoaded, Payload: p}, nil

	case InLoadDefaultTracks:
		return &Request{Type: InLoadDefaultTracks, Payload: LoadDefaultTracksPayload{}}, nil

	case InDeleteAudioSources:
		var p DeleteAudioSourcesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InDeleteAudioSources, Payload: p}, nil

	case InSearchMusic:
		var p SearchMusicPayload
		if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.Query) == "" {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InSearchMusic, Payload: p}, nil

	case InStreamMusic:
		var p StreamMusicPayload
		if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.ID) == "" {
			return nil, &ErrValidation{Reason: "Invalid message format"}
		}
		return &Request{Type: InStreamMusic, Payload: p}, nil

	default:
		return nil, &ErrValidation{Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

// MaxChatMessageLength bounds SEND_CHAT_MESSAGE text, per CHAT_CONSTANTS.MAX_MESSAGE_LENGTH.
const MaxChatMessageLength = 500

func validPosition(p model.Position) bool {
	return p.X >= 0 && p.X <= model.GridSize && p.Y >= 0 && p.Y <= model.GridSize
}

// NewErrorFrame builds the standard ERROR reply frame for any validation failure.
func NewErrorFrame(message string) ErrorMessage {
	return ErrorMessage{Type: OutError, Message: message}
}
