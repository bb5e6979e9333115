package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guildchat-backend/internal/hub"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/snowflake"
)

type dmThreadView struct {
	ID                 int64      `json:"id"`
	PartnerID          int64      `json:"partnerId"`
	PartnerUsername    string     `json:"partnerUsername"`
	PartnerAvatarColor string     `json:"partnerAvatarColor"`
	PartnerAvatarURL   string     `json:"partnerAvatarUrl"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastMessage        string     `json:"lastMessage,omitempty"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
}

func GetDMThreadList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	rows, err := db.Query(`
		SELECT t.id, u.id, u.username, u.avatar_color, u.avatar_url, t.created_at
		FROM dm_threads t
		JOIN users u ON u.id = CASE WHEN t.user1_id = ? THEN t.user2_id ELSE t.user1_id END
		WHERE t.user1_id = ? OR t.user2_id = ?
		ORDER BY t.created_at DESC
		`, userID, userID, userID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var threads []dmThreadView = []dmThreadView{}

	for rows.Next() {
		var thread dmThreadView
		err := rows.Scan(&thread.ID, &thread.PartnerID, &thread.PartnerUsername, &thread.PartnerAvatarColor, &thread.PartnerAvatarURL, &thread.CreatedAt)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	for i := range threads {
		var content string
		var createdAt time.Time
		err := db.QueryRow("SELECT content, created_at FROM dm_messages WHERE thread_id = ? ORDER BY id DESC LIMIT 1", threads[i].ID).
			Scan(&content, &createdAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		threads[i].LastMessage = content
		threads[i].LastMessageAt = &createdAt
	}

	writeJSON(w, threads)
}

// OpenDMThread finds or creates the thread between the caller and the target.
// The pair is stored canonically (lower id first), so opening from either side
// lands on the same thread.
func OpenDMThread(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	targetID, err := parseID(r, "userID")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if targetID == userID {
		http.Error(w, "Cannot DM yourself", http.StatusBadRequest)
		return
	}

	var exists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", targetID).Scan(&exists)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	user1, user2 := userID, targetID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	var thread models.DMThread
	err = db.QueryRow("SELECT id, user1_id, user2_id, created_at FROM dm_threads WHERE user1_id = ? AND user2_id = ?", user1, user2).
		Scan(&thread.ID, &thread.User1ID, &thread.User2ID, &thread.CreatedAt)
	if err == nil {
		writeJSON(w, thread)
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	threadID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	thread = models.DMThread{
		ID:        threadID,
		User1ID:   user1,
		User2ID:   user2,
		CreatedAt: time.Now().UTC(),
	}

	_, err = db.Exec("INSERT INTO dm_threads (id, user1_id, user2_id, created_at) VALUES (?, ?, ?, ?)",
		thread.ID, thread.User1ID, thread.User2ID, thread.CreatedAt)
	if err != nil {
		// concurrent open from the other side, re-read the winner
		if isDuplicate(err) {
			err = db.QueryRow("SELECT id, user1_id, user2_id, created_at FROM dm_threads WHERE user1_id = ? AND user2_id = ?", user1, user2).
				Scan(&thread.ID, &thread.User1ID, &thread.User2ID, &thread.CreatedAt)
			if err == nil {
				writeJSON(w, thread)
				return
			}
		}
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, thread)
}

// threadParticipant answers 404 for missing threads and 403 for outsiders.
func threadParticipant(w http.ResponseWriter, threadID int64, userID int64) bool {
	var user1, user2 int64
	err := db.QueryRow("SELECT user1_id, user2_id FROM dm_threads WHERE id = ?", threadID).Scan(&user1, &user2)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Thread not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return false
	}

	if user1 != userID && user2 != userID {
		http.Error(w, "Not a participant of this conversation", http.StatusForbidden)
		return false
	}
	return true
}

func GetDMMessageList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	threadID, err := parseID(r, "threadID")
	if err != nil {
		http.Error(w, "Invalid thread ID", http.StatusBadRequest)
		return
	}

	if !threadParticipant(w, threadID, userID) {
		return
	}

	query := `
		SELECT m.id, m.thread_id, m.sender_id, m.content, m.attachment_url, m.created_at,
			u.username, u.avatar_color, u.avatar_url
		FROM dm_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.thread_id = ?`
	args := []any{threadID}

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

	var messages []models.DMMessage = []models.DMMessage{}

	for rows.Next() {
		var message models.DMMessage
		err := rows.Scan(&message.ID, &message.ThreadID, &message.SenderID, &message.Content, &message.AttachmentURL, &message.CreatedAt,
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

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := attachDMReactions(messages); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, messages)
}

func attachDMReactions(messages []models.DMMessage) error {
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
		"SELECT dm_message_id, user_id, emoji FROM dm_reactions WHERE dm_message_id IN ("+strings.Join(placeholders, ",")+") ORDER BY dm_message_id, emoji",
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

// dmMessageThread answers 404 itself and returns the owning thread.
func dmMessageThread(w http.ResponseWriter, messageID int64) (int64, bool) {
	var threadID int64
	err := db.QueryRow("SELECT thread_id FROM dm_messages WHERE id = ?", messageID).Scan(&threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Message not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return 0, false
	}
	return threadID, true
}

func AddDMReaction(w http.ResponseWriter, r *http.Request) {
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

	threadID, ok := dmMessageThread(w, messageID)
	if !ok {
		return
	}

	if !threadParticipant(w, threadID, userID) {
		return
	}

	_, err = db.Exec(insertIgnorePrefix()+" INTO dm_reactions (dm_message_id, user_id, emoji) VALUES (?, ?, ?)",
		messageID, userID, request.Emoji)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	delta := hub.ReactionDelta{MessageID: messageID, Emoji: request.Emoji, UserID: userID, Action: "add"}
	if err := hub.Emit(hub.DMReactionUpdated, delta, hub.DMRoom(threadID)); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, delta)
}

func RemoveDMReaction(w http.ResponseWriter, r *http.Request) {
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

	threadID, ok := dmMessageThread(w, messageID)
	if !ok {
		return
	}

	if !threadParticipant(w, threadID, userID) {
		return
	}

	_, err = db.Exec("DELETE FROM dm_reactions WHERE dm_message_id = ? AND user_id = ? AND emoji = ?",
		messageID, userID, emoji)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	delta := hub.ReactionDelta{MessageID: messageID, Emoji: emoji, UserID: userID, Action: "remove"}
	if err := hub.Emit(hub.DMReactionUpdated, delta, hub.DMRoom(threadID)); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, delta)
}
