package wire

import (
	"fmt"
	"testing"
)

func TestDecodeUnknownTypeIsValidationError(t *testing.T) {
	_, err := Decode([]byte(`{"type":"NOT_A_REAL_TYPE"}`))
	if _, ok := err.(*ErrValidation); !ok {
		t.Fatalf("expected *ErrValidation, got %v", err)
	}
}

func TestDecodeMalformedJSONIsValidationError(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if _, ok := err.(*ErrValidation); !ok {
		t.Fatalf("expected *ErrValidation, got %v", err)
	}
}

func TestDecodePlayRequiresNonEmptyAudioSource(t *testing.T) {
	_, err := Decode([]byte(`{"type":"PLAY","audioSource":""}`))
	if _, ok := err.(*ErrValidation); !ok {
		t.Fatalf("expected *ErrValidation for empty audioSource, got %v", err)
	}

	req, err := Decode([]byte(`{"type":"PLAY","audioSource":"https://example.com/a.mp3"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Type != InPlay {
		t.Fatalf("expected InPlay, got %v", req.Type)
	}
}

func TestDecodeSetGlobalVolumeRange(t *testing.T) {
	cases := []struct {
		volume  float64
		wantErr bool
	}{
		{-0.1, true},
		{0, false},
		{0.5, false},
		{1, false},
		{1.1, true},
	}
	for _, c := range cases {
		body := []byte(fmt.Sprintf(`{"type":"SET_GLOBAL_VOLUME","volume":%v}`, c.volume))
		_, err := Decode(body)
		if c.wantErr && err == nil {
			t.Errorf("volume=%v: expected error, got none", c.volume)
		}
		if !c.wantErr && err != nil {
			t.Errorf("volume=%v: unexpected error: %v", c.volume, err)
		}
	}
}

func TestDecodeMoveClientRejectsOutOfGridPosition(t *testing.T) {
	_, err := Decode([]byte(`{"type":"MOVE_CLIENT","position":{"x":150,"y":10}}`))
	if _, ok := err.(*ErrValidation); !ok {
		t.Fatalf("expected *ErrValidation for out-of-grid position, got %v", err)
	}

	_, err = Decode([]byte(`{"type":"MOVE_CLIENT","position":{"x":50,"y":10}}`))
	if err != nil {
		t.Fatalf("unexpected error for in-grid position: %v", err)
	}
}

func TestDecodeSendChatMessageRejectsEmptyAfterTrim(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SEND_CHAT_MESSAGE","text":"   "}`))
	if _, ok := err.(*ErrValidation); !ok {
		t.Fatalf("expected *ErrValidation for blank text, got %v", err)
	}
}

func TestDecodeNTPRequest(t *testing.T) {
	req, err := Decode([]byte(`{"type":"NTP_REQUEST","t0":12345}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := req.Payload.(NTPRequestPayload)
	if !ok {
		t.Fatalf("expected NTPRequestPayload, got %T", req.Payload)
	}
	if payload.T0 != 12345 {
		t.Fatalf("expected t0=12345, got %d", payload.T0)
	}
}
