package server

import (
	"net/http"

	"github.com/Shivansh-Atwal/trackstack/core/feed"
	"github.com/Shivansh-Atwal/trackstack/logger"
)

// FeedStreamHandler upgrades to a websocket that receives public feed events.
func (h *APIHandler) FeedStreamHandler(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Feed stream unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("feed websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := feed.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}
