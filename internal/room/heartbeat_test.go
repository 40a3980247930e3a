package room

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type fakeBlobStore struct {
	onDelete func(prefix string)
}

func (f fakeBlobStore) DeleteByPrefix(_ context.Context, prefix string) error {
	if f.onDelete != nil {
		f.onDelete(prefix)
	}
	return nil
}

func (f fakeBlobStore) PresignUpload(_ context.Context, roomID, filename string) (string, error) {
	return "", nil
}

func TestOnHeartbeatUpdatesLastHeartbeatAt(t *testing.T) {
	r := newTestRoom()
	a := &mockSender{}
	r.AddClient("A", "alice", a)

	r.mu.Lock()
	r.clients["A"].LastHeartbeatAt = 0
	r.mu.Unlock()

	r.OnHeartbeat("A")

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.clients["A"].LastHeartbeatAt == 0 {
		t.Fatal("expected OnHeartbeat to refresh the client's last-heartbeat timestamp")
	}
}

func TestSweepIdleSessionsClosesStaleClientsOnly(t *testing.T) {
	r := newTestRoom()
	stale := &mockSender{}
	fresh := &mockSender{}
	r.AddClient("stale", "staleuser", stale)
	r.AddClient("fresh", "freshuser", fresh)

	r.mu.Lock()
	r.clients["stale"].LastHeartbeatAt = nowMs() - ResponseTimeoutMs - 1000
	r.clients["fresh"].LastHeartbeatAt = nowMs()
	r.mu.Unlock()

	r.sweepIdleSessions()

	if !stale.closed {
		t.Fatal("expected the stale client's session to be closed")
	}
	if stale.code != websocket.CloseNormalClosure {
		t.Fatalf("expected a normal-closure code, got %d", stale.code)
	}
	if fresh.closed {
		t.Fatal("expected the fresh client's session to remain open")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, connected := r.sessions["stale"]; connected {
		t.Fatal("expected the stale client to be removed from the connected-sessions map")
	}
	if _, connected := r.sessions["fresh"]; !connected {
		t.Fatal("expected the fresh client to remain connected")
	}
}

func TestSweepIdleSessionsPromotesAdminWhenAdminTimesOut(t *testing.T) {
	r := newTestRoom()
	admin := &mockSender{}
	other := &mockSender{}
	r.AddClient("admin", "adminuser", admin)
	r.AddClient("other", "otheruser", other)

	r.mu.Lock()
	r.clients["admin"].LastHeartbeatAt = nowMs() - ResponseTimeoutMs - 1000
	r.clients["other"].LastHeartbeatAt = nowMs()
	r.mu.Unlock()

	r.sweepIdleSessions()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.clients["other"].IsAdmin {
		t.Fatal("expected the remaining connected client to be promoted admin after the timed-out admin is evicted")
	}
}

func TestCleanupDeletesBlobsAndInvokesOnEmpty(t *testing.T) {
	var deletedPrefix string
	var emptied string
	r := New("654321", fakeBlobStore{onDelete: func(prefix string) { deletedPrefix = prefix }}, zerolog.Nop(), func(id string) { emptied = id })

	r.cleanup()

	if deletedPrefix == "" {
		t.Fatal("expected cleanup to call DeleteByPrefix")
	}
	if emptied != "654321" {
		t.Fatalf("expected onEmpty to be called with the room id, got %q", emptied)
	}
}
