package hub

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"guildchat-backend/internal/database"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/presence"
	"guildchat-backend/internal/snowflake"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	aliceID = int64(1)
	bobID   = int64(2)
	eveID   = int64(3)

	serverID  = int64(100)
	channelID = int64(200)
	threadID  = int64(300)
)

// startHub seeds a server where alice and bob are members and eve is not,
// plus one DM thread between alice and bob, and exposes HandleClient over a
// test listener.
func startHub(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := database.SetupMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	// the worker id sticks for the whole test binary, later calls are no-ops
	snowflake.Setup(0)

	nop := zap.NewNop().Sugar()
	permissions.Setup(nop, db)
	Setup(nop, nil, db, presence.NewLocalTracker(), true)

	now := time.Now().UTC()

	seed := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO users (id, username, password, avatar_color, avatar_url, created_at) VALUES (?, 'alice', 'x', '#fff', '', ?)", []any{aliceID, now}},
		{"INSERT INTO users (id, username, password, avatar_color, avatar_url, created_at) VALUES (?, 'bob', 'x', '#fff', '', ?)", []any{bobID, now}},
		{"INSERT INTO users (id, username, password, avatar_color, avatar_url, created_at) VALUES (?, 'eve', 'x', '#fff', '', ?)", []any{eveID, now}},
		{"INSERT INTO servers (id, owner_id, name, icon, created_at) VALUES (?, ?, 'hq', '', ?)", []any{serverID, aliceID, now}},
		{"INSERT INTO server_members (server_id, user_id, role, since) VALUES (?, ?, 'Admin', ?)", []any{serverID, aliceID, now}},
		{"INSERT INTO server_members (server_id, user_id, role, since) VALUES (?, ?, 'Member', ?)", []any{serverID, bobID, now}},
		{"INSERT INTO channels (id, server_id, name) VALUES (?, ?, 'general')", []any{channelID, serverID}},
		{"INSERT INTO dm_threads (id, user1_id, user2_id, created_at) VALUES (?, ?, ?, ?)", []any{threadID, aliceID, bobID, now}},
	}
	for _, s := range seed {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatal(err)
		}
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		if err != nil {
			http.Error(w, "", http.StatusBadRequest)
			return
		}
		HandleClient(w, r, userID, r.URL.Query().Get("name"))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func dial(t *testing.T, ts *httptest.Server, userID int64, username string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("?user=%d&name=%s", userID, username)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	frame, err := encodeFrame(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}
}

// awaitEvent reads frames until the wanted event arrives, skipping presence
// traffic and anything else in between.
func awaitEvent(t *testing.T, conn *websocket.Conn, wantEvent string) []byte {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for event %q: %v", wantEvent, err)
		}

		event, payload, err := decodeFrame(frame)
		if err != nil {
			t.Fatal(err)
		}
		if event == wantEvent {
			return payload
		}
	}
}

// requireNoEvent asserts the named event does not show up within the window.
func requireNoEvent(t *testing.T, conn *websocket.Conn, event string, window time.Duration) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(window))

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			t.Fatal(err)
		}

		got, _, err := decodeFrame(frame)
		if err != nil {
			t.Fatal(err)
		}
		if got == event {
			t.Fatalf("received event %q that should not have been delivered", event)
		}
	}
}

func TestChannelMessageFanOut(t *testing.T) {
	ts := startHub(t)

	alice := dial(t, ts, aliceID, "alice")
	send(t, alice, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, alice, SendMessage, map[string]any{"channelId": channelID, "content": "hello"})

	// the sender's own session receives the message too
	var first models.Message
	if err := json.Unmarshal(awaitEvent(t, alice, NewMessage), &first); err != nil {
		t.Fatal(err)
	}
	if first.Content != "hello" || first.Username != "alice" {
		t.Errorf("got message %+v", first)
	}
	if first.ID == 0 {
		t.Error("message id should be assigned")
	}

	bob := dial(t, ts, bobID, "bob")
	send(t, bob, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, bob, SendMessage, map[string]any{"channelId": channelID, "content": "world"})

	var fromBob models.Message
	if err := json.Unmarshal(awaitEvent(t, alice, NewMessage), &fromBob); err != nil {
		t.Fatal(err)
	}
	if fromBob.Content != "world" || fromBob.UserID != bobID {
		t.Errorf("got message %+v", fromBob)
	}

	var bobEcho models.Message
	if err := json.Unmarshal(awaitEvent(t, bob, NewMessage), &bobEcho); err != nil {
		t.Fatal(err)
	}
	if bobEcho.ID != fromBob.ID {
		t.Errorf("both members should see the same message, got %d and %d", bobEcho.ID, fromBob.ID)
	}
}

func TestMessageIDStaysNumericOnTheWire(t *testing.T) {
	ts := startHub(t)

	alice := dial(t, ts, aliceID, "alice")
	send(t, alice, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, alice, SendMessage, map[string]any{"channelId": channelID, "content": "numbers"})

	payload := awaitEvent(t, alice, NewMessage)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatal(err)
	}
	id, ok := raw["id"]
	if !ok {
		t.Fatal("payload has no id field")
	}
	if strings.HasPrefix(string(id), `"`) {
		t.Errorf("message id was serialized as a string: %s", id)
	}

	// numeric ids are only safe if they survive float64 parsing intact
	value, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if value >= 1<<53 {
		t.Errorf("message id %d does not fit in 53 bits", value)
	}
}

func TestEmptyMessageIsDropped(t *testing.T) {
	ts := startHub(t)

	alice := dial(t, ts, aliceID, "alice")
	send(t, alice, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, alice, SendMessage, map[string]any{"channelId": channelID, "content": "   "})
	send(t, alice, SendMessage, map[string]any{"channelId": channelID, "content": "real"})

	var msg models.Message
	if err := json.Unmarshal(awaitEvent(t, alice, NewMessage), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Content != "real" {
		t.Errorf("first delivered message = %q, the blank one should have been dropped", msg.Content)
	}
}

func TestNonMemberCannotJoinChannel(t *testing.T) {
	ts := startHub(t)

	eve := dial(t, ts, eveID, "eve")
	send(t, eve, JoinChannel, map[string]int64{"channelId": channelID})

	alice := dial(t, ts, aliceID, "alice")
	send(t, alice, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, alice, SendMessage, map[string]any{"channelId": channelID, "content": "secret"})

	awaitEvent(t, alice, NewMessage)

	requireNoEvent(t, eve, NewMessage, 300*time.Millisecond)
}

func TestOutsiderCannotJoinDMThread(t *testing.T) {
	ts := startHub(t)

	eve := dial(t, ts, eveID, "eve")
	send(t, eve, JoinDM, map[string]int64{"threadId": threadID})

	alice := dial(t, ts, aliceID, "alice")
	send(t, alice, JoinDM, map[string]int64{"threadId": threadID})
	send(t, alice, SendDM, map[string]any{"threadId": threadID, "content": "just us"})

	awaitEvent(t, alice, NewDM)

	requireNoEvent(t, eve, NewDM, 300*time.Millisecond)
}

func TestTypingExcludesSender(t *testing.T) {
	ts := startHub(t)

	alice := dial(t, ts, aliceID, "alice")
	bob := dial(t, ts, bobID, "bob")
	send(t, alice, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, bob, JoinChannel, map[string]int64{"channelId": channelID})

	// bob's join races alice's typing event, sync on a message first
	send(t, bob, SendMessage, map[string]any{"channelId": channelID, "content": "ping"})
	awaitEvent(t, alice, NewMessage)

	send(t, alice, TypingStart, map[string]int64{"channelId": channelID})

	var typing typingPayload
	if err := json.Unmarshal(awaitEvent(t, bob, UserTyping), &typing); err != nil {
		t.Fatal(err)
	}
	if typing.Username != "alice" {
		t.Errorf("typing username = %q, want alice", typing.Username)
	}

	requireNoEvent(t, alice, UserTyping, 300*time.Millisecond)
}

func TestPresenceLifecycle(t *testing.T) {
	ts := startHub(t)

	alice := dial(t, ts, aliceID, "alice")

	var snapshot []int64
	if err := json.Unmarshal(awaitEvent(t, alice, PresenceState), &snapshot); err != nil {
		t.Fatal(err)
	}

	bob := dial(t, ts, bobID, "bob")

	if status := awaitPresenceFor(t, alice, bobID); status != "online" {
		t.Errorf("got presence status %q, want bob online", status)
	}

	bob.Close()

	if status := awaitPresenceFor(t, alice, bobID); status != "offline" {
		t.Errorf("got presence status %q, want bob offline", status)
	}
}

// awaitPresenceFor skips presence deltas for other users, connections from
// earlier tests can still be winding down.
func awaitPresenceFor(t *testing.T, conn *websocket.Conn, userID int64) string {
	t.Helper()

	for {
		var update presenceUpdatePayload
		if err := json.Unmarshal(awaitEvent(t, conn, PresenceUpdate), &update); err != nil {
			t.Fatal(err)
		}
		if update.UserID == userID {
			return update.Status
		}
	}
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	ts := startHub(t)

	alice := dial(t, ts, aliceID, "alice")

	// no separator, unknown event, garbage JSON: none should kill the session
	alice.WriteMessage(websocket.TextMessage, []byte("noseparator"))
	alice.WriteMessage(websocket.TextMessage, []byte("unknown_event\n{}"))
	alice.WriteMessage(websocket.TextMessage, []byte("send_message\nnot json"))

	send(t, alice, JoinChannel, map[string]int64{"channelId": channelID})
	send(t, alice, SendMessage, map[string]any{"channelId": channelID, "content": "still alive"})

	var msg models.Message
	if err := json.Unmarshal(awaitEvent(t, alice, NewMessage), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Content != "still alive" {
		t.Errorf("connection should survive malformed frames, got %q", msg.Content)
	}
}
