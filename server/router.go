package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers every route. CORS and request logging wrap the router
// so preflight requests are answered even for routes without an OPTIONS
// method.
func NewRouter(h *APIHandler) http.Handler {
	router := mux.NewRouter()
	router.Use(h.IdentityMiddleware)

	jsonBody := LimitBody(h.cfg.MaxBodyBytes)
	limited := func(fn http.HandlerFunc) http.Handler { return jsonBody(fn) }

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	api.Handle("/auth/signup", limited(h.SignupHandler)).Methods(http.MethodPost)
	api.Handle("/auth/login", limited(h.LoginHandler)).Methods(http.MethodPost)

	api.HandleFunc("/songs", h.ListSongsHandler).Methods(http.MethodGet)
	api.Handle("/songs", limited(h.RequireValidToken(h.CreateSongHandler))).Methods(http.MethodPost)
	api.HandleFunc("/songs/public", h.ListPublicSongsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/public/ws", h.FeedStreamHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id}", h.GetSongHandler).Methods(http.MethodGet)
	api.Handle("/songs/{id}", limited(h.RequireValidToken(h.UpdateSongHandler))).Methods(http.MethodPut)
	api.HandleFunc("/songs/{id}", h.RequireValidToken(h.DeleteSongHandler)).Methods(http.MethodDelete)

	api.HandleFunc("/upload/beat", h.RequireValidToken(h.UploadBeatHandler)).Methods(http.MethodPost)
	api.HandleFunc("/upload/recording", h.RequireValidToken(h.UploadRecordingHandler)).Methods(http.MethodPost)

	router.HandleFunc("/media/{key:.+}", h.MediaHandler).Methods(http.MethodGet, http.MethodHead)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return RequestLogger(CORSMiddleware(h.cfg.CORSOrigin)(router))
}
