package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/beatsync/beatsync-server/internal/musicprovider"
	"github.com/beatsync/beatsync-server/internal/registry"
	"github.com/beatsync/beatsync-server/internal/session"
	"github.com/beatsync/beatsync-server/internal/storage"
	"github.com/beatsync/beatsync-server/internal/wire"
)

// newTestSession wires a real *session.Session over an in-process WebSocket
// pair via httptest, since Session has no Sender-style seam of its own (only
// Room does) — mirroring the pack's httptest+gorilla dial idiom for
// connection-level tests.
func newTestSession(t *testing.T, clientID, username, roomID string) (*session.Session, *websocket.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var serverConn *websocket.Conn

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConn = conn
	})
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for serverConn == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if serverConn == nil {
		t.Fatal("server-side connection never established")
	}

	sess := session.New(clientID, username, roomID, serverConn)
	cleanup := func() {
		sess.Close(websocket.CloseNormalClosure, "test done")
		_ = clientConn.Close()
		srv.Close()
	}
	return sess, clientConn, cleanup
}

func newTestDispatcher() *Dispatcher {
	reg := registry.New(storage.NoopStore{}, zerolog.Nop())
	provider := musicprovider.New("")
	return New(reg, provider, zerolog.Nop())
}

func TestDispatchNTPRequestRepliesWithStampedTimestamps(t *testing.T) {
	d := newTestDispatcher()
	sess, clientConn, cleanup := newTestSession(t, "A", "alice", "")
	defer cleanup()

	req := &wire.Request{Type: wire.InNTPRequest, Payload: wire.NTPRequestPayload{T0: 1000}}
	d.Dispatch(context.Background(), sess, req, 2000)

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an NTP reply, got error: %v", err)
	}
	if !strings.Contains(string(data), `"t0":1000`) || !strings.Contains(string(data), `"t1":2000`) {
		t.Fatalf("expected stamped t0/t1 in reply, got %s", data)
	}
}

func TestDispatchPlayRequiresEnrolledRoom(t *testing.T) {
	d := newTestDispatcher()
	sess, clientConn, cleanup := newTestSession(t, "A", "alice", "")
	defer cleanup()

	req := &wire.Request{Type: wire.InPlay, Payload: wire.PlayPayload{AudioSource: "u1"}}
	d.Dispatch(context.Background(), sess, req, 0)

	_ = clientConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := clientConn.ReadMessage(); err == nil {
		t.Fatal("expected no frame to be sent for a client with no enrolled room")
	}
}

func TestDispatchPlayRoutesIntoRoom(t *testing.T) {
	d := newTestDispatcher()
	room := d.Registry.GetOrCreateRoom("123456")
	sess, clientConn, cleanup := newTestSession(t, "A", "alice", "123456")
	defer cleanup()
	room.AddClient("A", "alice", sess)
	room.SetAudioSources([]string{"u1"})

	// Drain the CLIENT_CHANGE and full-sync CHAT_UPDATE broadcasts from
	// AddClient, and the SET_AUDIO_SOURCES broadcast, before dispatching PLAY.
	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, _ = clientConn.ReadMessage()
	_, _, _ = clientConn.ReadMessage()
	_, _, _ = clientConn.ReadMessage()

	req := &wire.Request{Type: wire.InPlay, Payload: wire.PlayPayload{AudioSource: "u1"}}
	d.Dispatch(context.Background(), sess, req, 0)

	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a LOAD_AUDIO_SOURCE broadcast, got error: %v", err)
	}
	if !strings.Contains(string(data), "LOAD_AUDIO_SOURCE") {
		t.Fatalf("expected LOAD_AUDIO_SOURCE event, got %s", data)
	}
}

func TestDispatchSearchMusicNoopWhenProviderDisabled(t *testing.T) {
	d := newTestDispatcher()
	room := d.Registry.GetOrCreateRoom("222222")
	sess, clientConn, cleanup := newTestSession(t, "A", "alice", "222222")
	defer cleanup()
	room.AddClient("A", "alice", sess)

	// Drain the CLIENT_CHANGE and full-sync CHAT_UPDATE broadcasts from
	// AddClient before dispatching.
	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, _ = clientConn.ReadMessage()
	_, _, _ = clientConn.ReadMessage()

	req := &wire.Request{Type: wire.InSearchMusic, Payload: wire.SearchMusicPayload{Query: "song"}}
	d.Dispatch(context.Background(), sess, req, 0)

	_ = clientConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := clientConn.ReadMessage(); err == nil {
		t.Fatal("expected no SEARCH_RESULTS frame with the provider disabled")
	}
}

func TestDispatchSearchMusicBroadcastsJobUpdateAroundTheSearch(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]musicprovider.Track{{ID: "1", Title: "Song", Artist: "Artist"}})
	}))
	defer provider.Close()

	reg := registry.New(storage.NoopStore{}, zerolog.Nop())
	d := New(reg, musicprovider.New(provider.URL), zerolog.Nop())
	room := d.Registry.GetOrCreateRoom("333333")
	sess, clientConn, cleanup := newTestSession(t, "A", "alice", "333333")
	defer cleanup()
	room.AddClient("A", "alice", sess)

	// Drain the CLIENT_CHANGE and full-sync CHAT_UPDATE broadcasts from
	// AddClient before dispatching.
	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, _ = clientConn.ReadMessage()
	_, _, _ = clientConn.ReadMessage()

	req := &wire.Request{Type: wire.InSearchMusic, Payload: wire.SearchMusicPayload{Query: "song"}}
	d.Dispatch(context.Background(), sess, req, 0)

	_ = clientConn.SetReadDeadline(time.Now().Add(time.Second))

	_, startData, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a STREAM_JOB_UPDATE when the search begins: %v", err)
	}
	if !strings.Contains(string(startData), `"STREAM_JOB_UPDATE"`) || !strings.Contains(string(startData), `"activeJobCount":1`) {
		t.Fatalf("expected STREAM_JOB_UPDATE with activeJobCount=1, got %s", startData)
	}

	_, resultsData, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a SEARCH_RESULTS frame: %v", err)
	}
	if !strings.Contains(string(resultsData), "SEARCH_RESULTS") {
		t.Fatalf("expected SEARCH_RESULTS event, got %s", resultsData)
	}

	_, endData, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a STREAM_JOB_UPDATE when the search ends: %v", err)
	}
	if !strings.Contains(string(endData), `"STREAM_JOB_UPDATE"`) || !strings.Contains(string(endData), `"activeJobCount":0`) {
		t.Fatalf("expected STREAM_JOB_UPDATE with activeJobCount=0, got %s", endData)
	}
}
