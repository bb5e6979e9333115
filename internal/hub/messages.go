package hub

import (
	"errors"
	"strings"
	"time"

	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/snowflake"
)

// Realtime handlers trust nothing in the payload beyond ids: membership is
// re-checked on join, thread participation on send, and empty messages are
// dropped. All failures here are silent no-ops toward the sender.

func (client *Client) handleJoinChannel(channelID int64) {
	var serverID int64
	err := db.QueryRow("SELECT server_id FROM channels WHERE id = ?", channelID).Scan(&serverID)
	if err != nil {
		sugar.Debugf("Session ID %d tried to join nonexistent channel ID %d", client.SessionID, channelID)
		return
	}

	_, err = permissions.GetMembership(serverID, client.UserID)
	if err != nil {
		if !errors.Is(err, permissions.ErrNotMember) {
			sugar.Error(err)
		}
		return
	}

	if err := JoinRoom(client.SessionID, ChannelRoom(channelID)); err != nil {
		sugar.Error(err)
	}
}

func (client *Client) handleJoinDM(threadID int64) {
	if !client.isThreadParticipant(threadID) {
		return
	}

	if err := JoinRoom(client.SessionID, DMRoom(threadID)); err != nil {
		sugar.Error(err)
	}
}

func (client *Client) isThreadParticipant(threadID int64) bool {
	var user1ID, user2ID int64
	err := db.QueryRow("SELECT user1_id, user2_id FROM dm_threads WHERE id = ?", threadID).Scan(&user1ID, &user2ID)
	if err != nil {
		sugar.Debugf("Session ID %d referenced nonexistent DM thread ID %d", client.SessionID, threadID)
		return false
	}

	return user1ID == client.UserID || user2ID == client.UserID
}

func (client *Client) handleSendMessage(payload sendMessagePayload) {
	content := strings.TrimSpace(payload.Content)
	if content == "" && payload.AttachmentURL == "" {
		return
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		return
	}

	// the timestamp is server-assigned, client clocks are never trusted
	_, err = db.Exec("INSERT INTO messages (id, channel_id, user_id, content, attachment_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		messageID, payload.ChannelID, client.UserID, content, payload.AttachmentURL, time.Now().UTC())
	if err != nil {
		sugar.Error(err)
		return
	}

	// re-read joined with author fields so every recipient, the sender's
	// other tabs included, renders the same denormalized object
	msg, err := readMessage(messageID)
	if err != nil {
		sugar.Error(err)
		return
	}

	err = Emit(NewMessage, msg, ChannelRoom(payload.ChannelID))
	if err != nil {
		sugar.Error(err)
	}
}

func (client *Client) handleSendDM(payload sendDMPayload) {
	content := strings.TrimSpace(payload.Content)
	if content == "" && payload.AttachmentURL == "" {
		return
	}

	// forged thread ids are dropped here
	if !client.isThreadParticipant(payload.ThreadID) {
		return
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		return
	}

	_, err = db.Exec("INSERT INTO dm_messages (id, thread_id, sender_id, content, attachment_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		messageID, payload.ThreadID, client.UserID, content, payload.AttachmentURL, time.Now().UTC())
	if err != nil {
		sugar.Error(err)
		return
	}

	msg, err := readDMMessage(messageID)
	if err != nil {
		sugar.Error(err)
		return
	}

	err = Emit(NewDM, msg, DMRoom(payload.ThreadID))
	if err != nil {
		sugar.Error(err)
	}
}

func (client *Client) handleTyping(event string, channelID int64) {
	err := EmitExcept(event, typingPayload{Username: client.Username, ChannelID: channelID}, ChannelRoom(channelID), client.SessionID)
	if err != nil {
		sugar.Error(err)
	}
}

func (client *Client) handleDMTyping(event string, threadID int64) {
	err := EmitExcept(event, dmTypingPayload{Username: client.Username, ThreadID: threadID}, DMRoom(threadID), client.SessionID)
	if err != nil {
		sugar.Error(err)
	}
}

func readMessage(messageID int64) (models.Message, error) {
	var msg models.Message
	err := db.QueryRow(`
		SELECT
			m.id, m.channel_id, m.user_id, m.content, m.attachment_url, m.created_at,
			u.username, u.avatar_color, u.avatar_url
		FROM
			messages m
		JOIN
			users u ON m.user_id = u.id
		WHERE
			m.id = ?
		`, messageID).Scan(
		&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Content, &msg.AttachmentURL, &msg.CreatedAt,
		&msg.Username, &msg.AvatarColor, &msg.AvatarURL)
	return msg, err
}

func readDMMessage(messageID int64) (models.DMMessage, error) {
	var msg models.DMMessage
	err := db.QueryRow(`
		SELECT
			dm.id, dm.thread_id, dm.sender_id, dm.content, dm.attachment_url, dm.created_at,
			u.username, u.avatar_color, u.avatar_url
		FROM
			dm_messages dm
		JOIN
			users u ON dm.sender_id = u.id
		WHERE
			dm.id = ?
		`, messageID).Scan(
		&msg.ID, &msg.ThreadID, &msg.SenderID, &msg.Content, &msg.AttachmentURL, &msg.CreatedAt,
		&msg.Username, &msg.AvatarColor, &msg.AvatarURL)
	return msg, err
}
