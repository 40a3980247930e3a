// ABOUTME: Local-filesystem BlobStore: writes uploads to disk and serves them back under /blobs
// ABOUTME: Grounded on rustyguts-bken's handleUpload/handleGetFile (uuid-named disk files, c.File serving)
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalDiskStore is a BlobStore that keeps uploaded audio under a local
// directory, useful for self-hosted single-node deployments with no object
// storage account configured. It also implements http.Handler so the HTTP
// surface can mount it directly at the path PresignUpload's URLs point to.
type LocalDiskStore struct {
	baseDir       string
	publicBaseURL string
}

// NewLocalDiskStore creates baseDir if needed and returns a store rooted
// there. publicBaseURL, if non-empty, is prepended to every minted upload
// URL (e.g. "https://beatsync.example.com"); left empty, URLs are
// server-relative, which every client in spec.md's browser/phone model can
// resolve against the origin it already dialed for GET /ws.
func NewLocalDiskStore(baseDir, publicBaseURL string) (*LocalDiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base dir %s: %w", baseDir, err)
	}
	return &LocalDiskStore{baseDir: baseDir, publicBaseURL: publicBaseURL}, nil
}

// PresignUpload mints a key under room-<roomID>/ with a uuid-derived
// filename, so it collides with neither a re-upload of the same original
// name nor another room's blobs.
func (s *LocalDiskStore) PresignUpload(_ context.Context, roomID, filename string) (string, error) {
	ext := filepath.Ext(filename)
	key := filepath.Join("room-"+roomID, uuid.New().String()+ext)
	if err := os.MkdirAll(filepath.Dir(filepath.Join(s.baseDir, key)), 0o755); err != nil {
		return "", fmt.Errorf("storage: create room dir: %w", err)
	}
	return s.publicBaseURL + "/blobs/" + filepath.ToSlash(key), nil
}

// DeleteByPrefix removes the directory tree rooted at prefix. Idempotent:
// removing an already-gone prefix is not an error.
func (s *LocalDiskStore) DeleteByPrefix(_ context.Context, prefix string) error {
	return os.RemoveAll(filepath.Join(s.baseDir, prefix))
}

// ServeHTTP handles both halves of a blob's lifecycle at /blobs/<key>: PUT
// writes the request body to disk (what a presigned-upload URL is for), GET
// serves it back.
func (s *LocalDiskStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/blobs/")
	if key == "" || strings.Contains(key, "..") {
		http.Error(w, "invalid blob key", http.StatusBadRequest)
		return
	}
	path := filepath.Join(s.baseDir, key)

	switch r.Method {
	case http.MethodPut:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			http.Error(w, "failed to prepare storage", http.StatusInternalServerError)
			return
		}
		f, err := os.Create(path)
		if err != nil {
			http.Error(w, "failed to create blob", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		if _, err := io.Copy(f, r.Body); err != nil {
			http.Error(w, "failed to write blob", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		http.ServeFile(w, r, path)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
