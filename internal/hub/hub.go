package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"

	"guildchat-backend/internal/presence"
	"guildchat-backend/internal/snowflake"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Client struct {
	UserID    int64
	Username  string
	SessionID int64
	Conn      *websocket.Conn
	PubSub    *redis.PubSub
	Ctx       context.Context
	frames    chan []byte
}

var clients = make(map[int64]*Client)
var clientsMutex sync.Mutex

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var db *sql.DB
var tracker presence.Tracker
var selfContained = true

var redisCtx = context.Background()

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _db *sql.DB, _tracker presence.Tracker, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	db = _db
	tracker = _tracker
	selfContained = _selfContained

	localPubSub.Setup()
}

func setClient(sessionID int64, client *Client) {
	sugar.Debugf("Adding user ID [%d] to clients as session ID [%d]", client.UserID, sessionID)
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	clients[sessionID] = client
}

func deleteClient(sessionID int64) {
	sugar.Debugf("Removing session ID [%d] from clients", sessionID)
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	delete(clients, sessionID)
}

func GetClient(sessionID int64) (*Client, bool) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	client, exists := clients[sessionID]
	return client, exists
}

func (client *Client) queueFrame(frame []byte) {
	select {
	case client.frames <- frame:
	default:
		// a client that can't drain its send buffer stops receiving;
		// its read loop will notice the closed connection and prune it
		sugar.Warnf("Session ID %d send buffer is full, dropping frame", client.SessionID)
	}
}

// sendPrivate delivers an event to this one connection only. Used for the
// presence snapshot on connect.
func (client *Client) sendPrivate(event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	client.queueFrame(frame)
	return nil
}

// HandleClient upgrades an already-authenticated request to a websocket
// connection and runs its read loop until disconnect.
func HandleClient(w http.ResponseWriter, r *http.Request, userID int64, username string) {
	sugar.Debugf("Connecting user ID [%d] to WebSocket", userID)

	sessionID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sugar.Error(err)
		return
	}
	defer conn.Close()

	clientCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		UserID:    userID,
		Username:  username,
		SessionID: sessionID,
		Conn:      conn,
		Ctx:       clientCtx,
		frames:    make(chan []byte, 64),
	}

	if !selfContained {
		client.PubSub = redisClient.Subscribe(clientCtx)
		defer client.PubSub.Close()
	}

	setClient(sessionID, client)

	go client.writePump()
	if !selfContained {
		go client.redisPump()
	}

	// every connection sits in its personal scope and the broadcast scope
	if err := JoinRoom(sessionID, UserRoom(userID)); err != nil {
		sugar.Error(err)
	}
	if err := JoinRoom(sessionID, broadcastRoom); err != nil {
		sugar.Error(err)
	}

	if tracker.Connect(userID) {
		err = Broadcast(PresenceUpdate, presenceUpdatePayload{UserID: userID, Status: "online"})
		if err != nil {
			sugar.Error(err)
		}
	}

	// full state sync privately, so a fresh client doesn't wait on deltas
	err = client.sendPrivate(PresenceState, tracker.OnlineSnapshot())
	if err != nil {
		sugar.Error(err)
	}

	client.readLoop()

	leaveAllRooms(sessionID)
	deleteClient(sessionID)

	if tracker.Disconnect(userID) {
		err = Broadcast(PresenceUpdate, presenceUpdatePayload{UserID: userID, Status: "offline"})
		if err != nil {
			sugar.Error(err)
		}
	}
}

func (client *Client) writePump() {
	for {
		select {
		case <-client.Ctx.Done():
			return
		case frame := <-client.frames:
			err := client.Conn.WriteMessage(websocket.TextMessage, frame)
			if err != nil {
				sugar.Debug(err)
				return
			}
		}
	}
}

// redisPump forwards pub/sub messages from other processes to this client.
func (client *Client) redisPump() {
	msgCh := client.PubSub.Channel()
	for {
		select {
		case <-client.Ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}

			var env envelope
			err := json.Unmarshal([]byte(msg.Payload), &env)
			if err != nil {
				sugar.Error(err)
				continue
			}
			if env.Except != 0 && env.Except == client.SessionID {
				continue
			}

			frame, err := encodeFrame(env.Event, env.Data)
			if err != nil {
				sugar.Error(err)
				continue
			}
			client.queueFrame(frame)
		}
	}
}

func (client *Client) readLoop() {
	for {
		_, frame, err := client.Conn.ReadMessage()
		if err != nil {
			sugar.Debug(err)
			return
		}

		client.dispatch(frame)
	}
}

// dispatch routes one inbound frame. Malformed or unauthorized frames are
// dropped without feedback to the sender.
func (client *Client) dispatch(frame []byte) {
	event, payload, err := decodeFrame(frame)
	if err != nil {
		sugar.Debug(err)
		return
	}

	switch event {
	case JoinChannel:
		var scope channelScope
		if json.Unmarshal(payload, &scope) == nil {
			client.handleJoinChannel(scope.ChannelID)
		}
	case LeaveChannel:
		var scope channelScope
		if json.Unmarshal(payload, &scope) == nil {
			if err := LeaveRoom(client.SessionID, ChannelRoom(scope.ChannelID)); err != nil {
				sugar.Error(err)
			}
		}
	case SendMessage:
		var msg sendMessagePayload
		if json.Unmarshal(payload, &msg) == nil {
			client.handleSendMessage(msg)
		}
	case TypingStart:
		var scope channelScope
		if json.Unmarshal(payload, &scope) == nil {
			client.handleTyping(UserTyping, scope.ChannelID)
		}
	case TypingStop:
		var scope channelScope
		if json.Unmarshal(payload, &scope) == nil {
			client.handleTyping(UserStopTyping, scope.ChannelID)
		}
	case JoinDM:
		var scope threadScope
		if json.Unmarshal(payload, &scope) == nil {
			client.handleJoinDM(scope.ThreadID)
		}
	case LeaveDM:
		var scope threadScope
		if json.Unmarshal(payload, &scope) == nil {
			if err := LeaveRoom(client.SessionID, DMRoom(scope.ThreadID)); err != nil {
				sugar.Error(err)
			}
		}
	case SendDM:
		var msg sendDMPayload
		if json.Unmarshal(payload, &msg) == nil {
			client.handleSendDM(msg)
		}
	case DMTypingStart:
		var scope threadScope
		if json.Unmarshal(payload, &scope) == nil {
			client.handleDMTyping(DMUserTyping, scope.ThreadID)
		}
	case DMTypingStop:
		var scope threadScope
		if json.Unmarshal(payload, &scope) == nil {
			client.handleDMTyping(DMUserStopTyping, scope.ThreadID)
		}
	default:
		sugar.Debugf("Session ID %d sent unknown event [%s]", client.SessionID, event)
	}
}
