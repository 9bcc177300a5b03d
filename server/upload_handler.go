package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/Shivansh-Atwal/trackstack/storage"
)

// multipartOverhead is the allowance for multipart boundaries and headers on
// top of the file ceiling.
const multipartOverhead = 64 << 10

// UploadBeatHandler stores a beat upload.
func (h *APIHandler) UploadBeatHandler(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, storage.FolderBeats)
}

// UploadRecordingHandler stores a recording upload.
func (h *APIHandler) UploadRecordingHandler(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, storage.FolderRecordings)
}

// upload reads the multipart "file" field into memory and hands it to the
// media store. Oversized bodies are refused before the store is called.
func (h *APIHandler) upload(w http.ResponseWriter, r *http.Request, folder string) {
	limit := h.media.MaxBytes() + multipartOverhead
	if r.ContentLength > limit {
		respondError(w, r, storage.ErrTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(h.media.MaxBytes()); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, storage.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "No file")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	asset, err := h.media.Store(r.Context(), data, folder, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}
