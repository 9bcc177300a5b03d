package server

import (
	"net/http"

	"github.com/Shivansh-Atwal/trackstack/core/auth"
	"github.com/Shivansh-Atwal/trackstack/core/song"
	"github.com/Shivansh-Atwal/trackstack/logger"

	"github.com/gorilla/mux"
)

// ListSongsHandler returns the caller's songs.
func (h *APIHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.songs.List(r.Context(), auth.IdentityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// ListPublicSongsHandler returns the public feed.
func (h *APIHandler) ListPublicSongsHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.songs.ListPublic(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// CreateSongHandler creates a song owned by the caller, if any.
func (h *APIHandler) CreateSongHandler(w http.ResponseWriter, r *http.Request) {
	var draft song.Draft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, r, err)
		return
	}

	created, err := h.songs.Create(r.Context(), auth.IdentityFrom(r.Context()), draft)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetSongHandler returns one song.
func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	found, err := h.songs.Get(r.Context(), auth.IdentityFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// UpdateSongHandler applies a partial update.
func (h *APIHandler) UpdateSongHandler(w http.ResponseWriter, r *http.Request) {
	var patch song.Patch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	updated, report, err := h.songs.Update(r.Context(), auth.IdentityFrom(r.Context()), id, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !report.OK() {
		logger.Warn("[Song] update left orphaned assets",
			logger.String("songId", id),
			logger.Int("failed", len(report.Failed())))
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteSongHandler removes a song and its assets.
func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, err := h.songs.Remove(r.Context(), auth.IdentityFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !report.OK() {
		logger.Warn("[Song] delete left orphaned assets",
			logger.String("songId", id),
			logger.Int("failed", len(report.Failed())))
	}
	w.WriteHeader(http.StatusNoContent)
}
