// Package testutil provides fake upstream servers and archive helpers for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Beatmap is a beatmap served by OsuServer.
type Beatmap struct {
	ID            string
	SetID         int
	Artist        string
	ArtistUnicode string
	Title         string
	Version       string
}

// OsuServer fakes the osu! OAuth token endpoint and the beatmap lookup of API v2.
type OsuServer struct {
	*httptest.Server

	ClientID     string
	ClientSecret string

	mu       sync.RWMutex
	beatmaps map[string]Beatmap

	tokenRequests   atomic.Int32
	beatmapRequests atomic.Int32
	failTokens      atomic.Bool
}

// NewOsuServer starts an OsuServer accepting the credentials "id"/"secret".
// The server is closed when the test ends.
func NewOsuServer(tb testing.TB) *OsuServer {
	tb.Helper()
	s := &OsuServer{
		ClientID:     "id",
		ClientSecret: "secret",
		beatmaps:     make(map[string]Beatmap),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("GET /api/v2/beatmaps/{id}", s.handleBeatmap)
	s.Server = httptest.NewServer(mux)
	tb.Cleanup(s.Close)
	return s
}

// TokenURL returns the token endpoint.
func (s *OsuServer) TokenURL() string {
	return s.URL + "/oauth/token"
}

// APIURL returns the API base URL.
func (s *OsuServer) APIURL() string {
	return s.URL + "/api/v2"
}

// AddBeatmap registers beatmaps served by the API.
func (s *OsuServer) AddBeatmap(beatmaps ...Beatmap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range beatmaps {
		s.beatmaps[b.ID] = b
	}
}

// FailTokens makes the token endpoint answer with a server error.
func (s *OsuServer) FailTokens(fail bool) {
	s.failTokens.Store(fail)
}

// TokenRequests returns the number of successful token exchanges.
func (s *OsuServer) TokenRequests() int {
	return int(s.tokenRequests.Load())
}

// BeatmapRequests returns the number of beatmap lookups.
func (s *OsuServer) BeatmapRequests() int {
	return int(s.beatmapRequests.Load())
}

func (s *OsuServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.failTokens.Load() {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != s.ClientID ||
		r.PostForm.Get("client_secret") != s.ClientSecret {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	n := s.tokenRequests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token_type":   "Bearer",
		"expires_in":   86400,
		"access_token": "token-" + strconv.Itoa(int(n)),
	})
}

func (s *OsuServer) handleBeatmap(w http.ResponseWriter, r *http.Request) {
	s.beatmapRequests.Add(1)
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.RLock()
	b, ok := s.beatmaps[r.PathValue("id")]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, `{"error":null}`, http.StatusNotFound)
		return
	}

	id, _ := strconv.Atoi(b.ID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":            id,
		"beatmapset_id": b.SetID,
		"version":       b.Version,
		"mode":          "osu",
		"status":        "ranked",
		"beatmapset": map[string]any{
			"id":             b.SetID,
			"artist":         b.Artist,
			"artist_unicode": b.ArtistUnicode,
			"title":          b.Title,
			"title_unicode":  b.Title,
		},
	})
}

// MirrorServer fakes a beatmap download mirror serving {URL}/d/{setID}.
type MirrorServer struct {
	*httptest.Server

	mu       sync.RWMutex
	archives map[int][]byte
	requests atomic.Int32
}

// NewMirrorServer starts a MirrorServer. The server is closed when the test ends.
func NewMirrorServer(tb testing.TB) *MirrorServer {
	tb.Helper()
	s := &MirrorServer{archives: make(map[int][]byte)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /d/{id}", s.handleDownload)
	s.Server = httptest.NewServer(mux)
	tb.Cleanup(s.Close)
	return s
}

// MirrorURL returns the mirror base URL.
func (s *MirrorServer) MirrorURL() string {
	return s.URL + "/d"
}

// AddArchive registers the archive served for setID.
func (s *MirrorServer) AddArchive(setID int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[setID] = data
}

// Requests returns the number of download requests.
func (s *MirrorServer) Requests() int {
	return int(s.requests.Load())
}

func (s *MirrorServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.RLock()
	data, ok := s.archives[id]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/x-osu-beatmap-archive")
	_, _ = w.Write(data)
}

// ZipFile is a file read back from a zip archive.
type ZipFile struct {
	Name string
	Data []byte
}

// ReadZip returns the files of a zip archive in archive order.
func ReadZip(tb testing.TB, data []byte) []ZipFile {
	tb.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		tb.Fatalf("open zip: %v", err)
	}
	files := make([]ZipFile, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			tb.Fatalf("open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			tb.Fatalf("read %s: %v", f.Name, err)
		}
		files = append(files, ZipFile{Name: f.Name, Data: content})
	}
	return files
}

// ZipNames returns the file names of a zip archive in archive order.
func ZipNames(tb testing.TB, data []byte) []string {
	tb.Helper()
	files := ReadZip(tb, data)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
