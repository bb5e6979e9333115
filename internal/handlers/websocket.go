package handlers

import (
	"net/http"

	"guildchat-backend/internal/hub"
)

func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	hub.HandleClient(w, r, ctxUserID(r), ctxUsername(r))
}
