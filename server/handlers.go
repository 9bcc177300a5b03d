package server

import (
	"context"
	"io"
	"net/http"

	"github.com/Shivansh-Atwal/trackstack/config"
	"github.com/Shivansh-Atwal/trackstack/core/auth"
	"github.com/Shivansh-Atwal/trackstack/core/feed"
	"github.com/Shivansh-Atwal/trackstack/core/song"
	"github.com/Shivansh-Atwal/trackstack/model"
	"github.com/Shivansh-Atwal/trackstack/storage"

	"github.com/gorilla/websocket"
)

// SongService is the song API the handlers call.
type SongService interface {
	List(ctx context.Context, caller auth.Identity) ([]*model.Song, error)
	ListPublic(ctx context.Context) ([]*model.PublicSong, error)
	Create(ctx context.Context, caller auth.Identity, draft song.Draft) (*model.Song, error)
	Get(ctx context.Context, caller auth.Identity, id string) (*model.Song, error)
	Update(ctx context.Context, caller auth.Identity, id string, patch song.Patch) (*model.Song, song.CleanupReport, error)
	Remove(ctx context.Context, caller auth.Identity, id string) (song.CleanupReport, error)
}

// MediaStore stores uploads and serves them back through the media proxy.
type MediaStore interface {
	Store(ctx context.Context, data []byte, folder, filename, contentType string) (storage.Asset, error)
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectMeta, error)
	MaxBytes() int64
}

// APIHandler holds the dependencies of every HTTP handler.
type APIHandler struct {
	auth     *auth.Authenticator
	songs    SongService
	media    MediaStore
	hub      *feed.Hub
	cfg      *config.Config
	upgrader websocket.Upgrader
}

// NewAPIHandler creates the handler set. hub may be nil, which disables the
// feed stream.
func NewAPIHandler(authenticator *auth.Authenticator, songs SongService, media MediaStore, hub *feed.Hub, cfg *config.Config) *APIHandler {
	h := &APIHandler{
		auth:  authenticator,
		songs: songs,
		media: media,
		hub:   hub,
		cfg:   cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// originAllowed accepts requests without an Origin header and those from the
// configured CORS origin.
func (h *APIHandler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || h.cfg.CORSOrigin == "*" || origin == h.cfg.CORSOrigin
}
