package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"guildchat-backend/internal/hub"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
)

const messagePageSize = 50

// channelServer maps a channel to its server, answering 404 itself when the
// channel doesn't exist.
func channelServer(w http.ResponseWriter, channelID int64) (int64, bool) {
	var serverID int64
	err := db.QueryRow("SELECT server_id FROM channels WHERE id = ?", channelID).Scan(&serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Channel not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return 0, false
	}
	return serverID, true
}

// GetMessageList pages backwards through channel history. The ?before= cursor
// is exclusive; results come back in chronological order with reactions
// attached.
func GetMessageList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	channelID, err := parseID(r, "channelID")
	if err != nil {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return
	}

	serverID, ok := channelServer(w, channelID)
	if !ok {
		return
	}

	if !requireMembership(w, serverID, userID) {
		return
	}

	query := `
		SELECT m.id, m.channel_id, m.user_id, m.content, m.attachment_url, m.created_at,
			u.username, u.avatar_color, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?`
	args := []any{channelID}

	if before := r.URL.Query().Get("before"); before != "" {
		beforeID, err := strconv.ParseInt(before, 10, 64)
		if err != nil {
			http.Error(w, "Invalid before cursor", http.StatusBadRequest)
			return
		}
		query += " AND m.id < ?"
		args = append(args, beforeID)
	}

	query += " ORDER BY m.id DESC LIMIT ?"
	args = append(args, messagePageSize)

	rows, err := db.Query(query, args...)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var messages []models.Message = []models.Message{}

	for rows.Next() {
		var message models.Message
		err := rows.Scan(&message.ID, &message.ChannelID, &message.UserID, &message.Content, &message.AttachmentURL, &message.CreatedAt,
			&message.Username, &message.AvatarColor, &message.AvatarURL)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	// queried newest first for the LIMIT, served oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := attachReactions(messages); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, messages)
}

// attachReactions fills in the Reactions slice for a page of messages with a
// single query over the page's ids.
func attachReactions(messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	index := make(map[int64]int, len(messages))
	placeholders := make([]string, 0, len(messages))
	args := make([]any, 0, len(messages))
	for i, message := range messages {
		index[message.ID] = i
		placeholders = append(placeholders, "?")
		args = append(args, message.ID)
	}

	rows, err := db.Query(
		"SELECT message_id, user_id, emoji FROM reactions WHERE message_id IN ("+strings.Join(placeholders, ",")+") ORDER BY message_id, emoji",
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		var reaction models.Reaction
		if err := rows.Scan(&messageID, &reaction.UserID, &reaction.Emoji); err != nil {
			return err
		}
		if i, ok := index[messageID]; ok {
			messages[i].Reactions = append(messages[i].Reactions, reaction)
		}
	}

	return rows.Err()
}

// DeleteMessage lets the author, message managers and admins remove a
// message. Everyone in the channel hears about it with numeric ids.
func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	messageID, err := parseID(r, "messageID")
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var authorID, channelID, serverID int64
	err = db.QueryRow(`
		SELECT m.user_id, m.channel_id, c.server_id
		FROM messages m
		JOIN channels c ON c.id = m.channel_id
		WHERE m.id = ?
		`, messageID).Scan(&authorID, &channelID, &serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Message not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	if authorID != userID {
		membership, err := permissions.GetMembership(serverID, userID)
		if err != nil {
			if errors.Is(err, permissions.ErrNotMember) {
				http.Error(w, "Not a member of this server", http.StatusForbidden)
			} else {
				sugar.Error(err)
				http.Error(w, "", http.StatusInternalServerError)
			}
			return
		}
		if !membership.HasCapability(permissions.CapManageMessages) {
			http.Error(w, "You cannot delete this message", http.StatusForbidden)
			return
		}
	}

	_, err = db.Exec("DELETE FROM messages WHERE id = ?", messageID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	deletion := hub.MessageDeletion{MessageID: messageID, ChannelID: channelID}
	if err := hub.Emit(hub.MessageDeleted, deletion, hub.ChannelRoom(channelID)); err != nil {
		sugar.Error(err)
	}

	w.WriteHeader(http.StatusOK)
}

// messageChannel answers 404 for missing messages and hands back the channel
// to broadcast reaction deltas into.
func messageChannel(w http.ResponseWriter, messageID int64) (channelID int64, serverID int64, ok bool) {
	err := db.QueryRow(`
		SELECT m.channel_id, c.server_id
		FROM messages m
		JOIN channels c ON c.id = m.channel_id
		WHERE m.id = ?
		`, messageID).Scan(&channelID, &serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Message not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return 0, 0, false
	}
	return channelID, serverID, true
}

// AddReaction is idempotent: reacting twice with the same emoji is a no-op at
// the database and every listener still sees at most one delta per row.
func AddReaction(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	messageID, err := parseID(r, "messageID")
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	type reactionRequest struct {
		Emoji string `json:"emoji"`
	}

	var request reactionRequest
	err = json.NewDecoder(r.Body).Decode(&request)
	if err != nil || request.Emoji == "" {
		http.Error(w, "Emoji required", http.StatusBadRequest)
		return
	}

	channelID, serverID, ok := messageChannel(w, messageID)
	if !ok {
		return
	}

	if !requireMembership(w, serverID, userID) {
		return
	}

	_, err = db.Exec(insertIgnorePrefix()+" INTO reactions (message_id, user_id, emoji) VALUES (?, ?, ?)",
		messageID, userID, request.Emoji)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	delta := hub.ReactionDelta{MessageID: messageID, Emoji: request.Emoji, UserID: userID, Action: "add"}
	if err := hub.Emit(hub.ReactionUpdated, delta, hub.ChannelRoom(channelID)); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, delta)
}

func RemoveReaction(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	messageID, err := parseID(r, "messageID")
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	emoji := chiURLParam(r, "emoji")
	if emoji == "" {
		http.Error(w, "Emoji required", http.StatusBadRequest)
		return
	}

	channelID, serverID, ok := messageChannel(w, messageID)
	if !ok {
		return
	}

	if !requireMembership(w, serverID, userID) {
		return
	}

	_, err = db.Exec("DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?",
		messageID, userID, emoji)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	delta := hub.ReactionDelta{MessageID: messageID, Emoji: emoji, UserID: userID, Action: "remove"}
	if err := hub.Emit(hub.ReactionUpdated, delta, hub.ChannelRoom(channelID)); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, delta)
}
