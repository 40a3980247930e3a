package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPresignUploadMintsRoomScopedURL(t *testing.T) {
	s, err := NewLocalDiskStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalDiskStore: %v", err)
	}

	url, err := s.PresignUpload(context.Background(), "123456", "song.mp3")
	if err != nil {
		t.Fatalf("PresignUpload: %v", err)
	}
	if !strings.HasPrefix(url, "/blobs/room-123456/") {
		t.Fatalf("expected url under /blobs/room-123456/, got %q", url)
	}
	if !strings.HasSuffix(url, ".mp3") {
		t.Fatalf("expected url to keep the original extension, got %q", url)
	}
}

func TestPresignUploadHonorsPublicBaseURL(t *testing.T) {
	s, err := NewLocalDiskStore(t.TempDir(), "https://beatsync.example.com")
	if err != nil {
		t.Fatalf("NewLocalDiskStore: %v", err)
	}

	url, err := s.PresignUpload(context.Background(), "1", "a.wav")
	if err != nil {
		t.Fatalf("PresignUpload: %v", err)
	}
	if !strings.HasPrefix(url, "https://beatsync.example.com/blobs/room-1/") {
		t.Fatalf("expected absolute url, got %q", url)
	}
}

func TestServeHTTPRoundTripsPutThenGet(t *testing.T) {
	s, err := NewLocalDiskStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalDiskStore: %v", err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	want := []byte("beatsync-test-audio-bytes")

	putReq, err := http.NewRequest(http.MethodPut, ts.URL+"/blobs/room-1/track.mp3", bytes.NewReader(want))
	if err != nil {
		t.Fatalf("new PUT request: %v", err)
	}
	putResp, err := http.DefaultClient.Do(putReq)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from PUT, got %d", putResp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/blobs/room-1/track.mp3")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from GET, got %d", getResp.StatusCode)
	}
	got, err := io.ReadAll(getResp.Body)
	if err != nil {
		t.Fatalf("read GET body: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped bytes mismatch: got=%q want=%q", got, want)
	}
}

func TestServeHTTPRejectsPathTraversal(t *testing.T) {
	s, err := NewLocalDiskStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalDiskStore: %v", err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/blobs/../../etc/passwd")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a traversal attempt, got %d", resp.StatusCode)
	}
}

func TestDeleteByPrefixRemovesRoomDirectory(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalDiskStore(base, "")
	if err != nil {
		t.Fatalf("NewLocalDiskStore: %v", err)
	}

	roomDir := filepath.Join(base, "room-42")
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		t.Fatalf("seed room dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(roomDir, "track.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := s.DeleteByPrefix(context.Background(), "room-42"); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	if _, err := os.Stat(roomDir); !os.IsNotExist(err) {
		t.Fatalf("expected room-42 directory to be removed, stat err=%v", err)
	}
}

func TestDeleteByPrefixIsIdempotent(t *testing.T) {
	s, err := NewLocalDiskStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalDiskStore: %v", err)
	}
	if err := s.DeleteByPrefix(context.Background(), "room-never-existed"); err != nil {
		t.Fatalf("expected deleting a missing prefix to be a no-op, got %v", err)
	}
}
