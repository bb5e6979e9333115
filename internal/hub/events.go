package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire framing in both directions: event name, newline, JSON payload.
// Event names and payload shapes are the realtime contract; both families
// (channel and DM) share the same shape under separate namespaces.

// client -> server
const (
	JoinChannel   = "join_channel"
	LeaveChannel  = "leave_channel"
	SendMessage   = "send_message"
	TypingStart   = "typing_start"
	TypingStop    = "typing_stop"
	JoinDM        = "join_dm"
	LeaveDM       = "leave_dm"
	SendDM        = "send_dm"
	DMTypingStart = "dm_typing_start"
	DMTypingStop  = "dm_typing_stop"
)

// server -> client
const (
	NewMessage        = "new_message"
	MessageDeleted    = "message_deleted"
	UserTyping        = "user_typing"
	UserStopTyping    = "user_stop_typing"
	NewDM             = "new_dm"
	DMUserTyping      = "dm_user_typing"
	DMUserStopTyping  = "dm_user_stop_typing"
	ReactionUpdated   = "reaction_updated"
	DMReactionUpdated = "dm_reaction_updated"
	PresenceState     = "presence_state"
	PresenceUpdate    = "presence_update"
	ServerCreated     = "server_created"
	ServerJoined      = "server_joined"
	ChannelCreated    = "channel_created"
	MemberKicked      = "member_kicked"
	MemberBanned      = "member_banned"
)

// Inbound payloads form a closed set: the read loop decodes into exactly one
// of these per event name and drops anything else at the boundary.

type channelScope struct {
	ChannelID int64 `json:"channelId"`
}

type threadScope struct {
	ThreadID int64 `json:"threadId"`
}

type sendMessagePayload struct {
	ChannelID     int64  `json:"channelId"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachmentUrl"`
}

type sendDMPayload struct {
	ThreadID      int64  `json:"threadId"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachmentUrl"`
}

type typingPayload struct {
	Username  string `json:"username"`
	ChannelID int64  `json:"channelId"`
}

type dmTypingPayload struct {
	Username string `json:"username"`
	ThreadID int64  `json:"threadId"`
}

type presenceUpdatePayload struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

// ReactionDelta is broadcast after every reaction mutation. MessageID is a
// JSON number end-to-end; emitting it as a string breaks receivers that
// compare it against numeric message ids.
type ReactionDelta struct {
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    int64  `json:"userId"`
	Action    string `json:"action"`
}

// MessageDeletion mirrors ReactionDelta's numeric-id contract.
type MessageDeletion struct {
	MessageID int64 `json:"messageId"`
	ChannelID int64 `json:"channelId"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(event) + 1 + len(jsonBytes))
	buf.WriteString(event)
	buf.WriteByte('\n')
	buf.Write(jsonBytes)

	return buf.Bytes(), nil
}

func decodeFrame(frame []byte) (string, []byte, error) {
	event, payload, found := bytes.Cut(frame, []byte{'\n'})
	if !found {
		return "", nil, fmt.Errorf("frame is missing the event name separator")
	}
	return string(event), payload, nil
}

// envelope is the redis pub/sub transport wrapper. Except carries the session
// to skip on delivery, so typing events exclude their sender across processes.
type envelope struct {
	Event  string          `json:"event"`
	Except int64           `json:"except,omitempty"`
	Data   json.RawMessage `json:"data"`
}
