package hub

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Room keys are namespaced by kind so numeric id collisions between channels
// and DM threads can never cross-deliver.

const broadcastRoom = "broadcast"

func ChannelRoom(channelID int64) string {
	return fmt.Sprintf("channel:%d", channelID)
}

func DMRoom(threadID int64) string {
	return fmt.Sprintf("dm:%d", threadID)
}

func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// LocalPubSub scopes fan-out to the sessions currently joined to a room.
// A session can sit in many rooms at once; join and leave are idempotent.
type LocalPubSub struct {
	mutex   sync.RWMutex
	hashMap map[string][]int64
}

func (ps *LocalPubSub) Setup() {
	ps.hashMap = make(map[string][]int64)
}

func (ps *LocalPubSub) Subscribe(room string, sessionID int64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if slices.Contains(ps.hashMap[room], sessionID) {
		return
	}
	ps.hashMap[room] = append(ps.hashMap[room], sessionID)
}

func (ps *LocalPubSub) Unsubscribe(room string, sessionID int64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ps.unsubscribeLocked(room, sessionID)
}

func (ps *LocalPubSub) unsubscribeLocked(room string, sessionID int64) {
	sessionIDs := ps.hashMap[room]

	// this won't run in case the room doesn't exist since length will be 0
	for i := range sessionIDs {
		if sessionIDs[i] == sessionID {
			sessionIDs[i] = sessionIDs[len(sessionIDs)-1]
			ps.hashMap[room] = sessionIDs[:len(sessionIDs)-1]
			break
		}
	}

	// delete the room from the map if no session is subscribed to it
	if len(ps.hashMap[room]) == 0 {
		delete(ps.hashMap, room)
	}
}

func (ps *LocalPubSub) UnsubscribeFromAll(sessionID int64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for room := range ps.hashMap {
		ps.unsubscribeLocked(room, sessionID)
	}
}

func (ps *LocalPubSub) Sessions(room string) []int64 {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	return slices.Clone(ps.hashMap[room])
}

var localPubSub LocalPubSub

// JoinRoom subscribes a session to a room. Redundant joins are no-ops.
func JoinRoom(sessionID int64, room string) error {
	client, exists := GetClient(sessionID)
	if !exists {
		return fmt.Errorf("session ID [%d] tried to join room [%s] but the session isn't connected to hub", sessionID, room)
	}

	if selfContained {
		localPubSub.Subscribe(room, sessionID)
	} else {
		err := client.PubSub.Subscribe(client.Ctx, room)
		if err != nil {
			return err
		}
	}

	sugar.Debugf("Session ID %d joined room %s", sessionID, room)
	return nil
}

// LeaveRoom unsubscribes a session from a room. Redundant leaves are no-ops.
func LeaveRoom(sessionID int64, room string) error {
	client, exists := GetClient(sessionID)
	if !exists {
		return nil
	}

	if selfContained {
		localPubSub.Unsubscribe(room, sessionID)
	} else {
		err := client.PubSub.Unsubscribe(client.Ctx, room)
		if err != nil {
			return err
		}
	}

	sugar.Debugf("Session ID %d left room %s", sessionID, room)
	return nil
}

func leaveAllRooms(sessionID int64) {
	if selfContained {
		localPubSub.UnsubscribeFromAll(sessionID)
	}
	// the redis path tears all subscriptions down with the client's PubSub
}

// Emit delivers an event to every session joined to the room, including the
// sender's own sessions.
func Emit(event string, payload any, room string) error {
	return emit(event, payload, room, 0)
}

// EmitExcept delivers an event to the room minus one session. Typing
// indicators use this so the author never sees their own signal.
func EmitExcept(event string, payload any, room string, exceptSessionID int64) error {
	return emit(event, payload, room, exceptSessionID)
}

// Broadcast delivers an event to every connected session. Presence deltas go
// through here.
func Broadcast(event string, payload any) error {
	return emit(event, payload, broadcastRoom, 0)
}

func emit(event string, payload any, room string, exceptSessionID int64) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	if selfContained {
		for _, sessionID := range localPubSub.Sessions(room) {
			if sessionID == exceptSessionID {
				continue
			}
			client, exists := GetClient(sessionID)
			if !exists {
				sugar.Warnf("Session ID %d is supposed to be available", sessionID)
				continue
			}
			client.queueFrame(frame)
		}
		return nil
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	envelopeBytes, err := json.Marshal(envelope{Event: event, Except: exceptSessionID, Data: jsonBytes})
	if err != nil {
		return err
	}

	return redisClient.Publish(redisCtx, room, string(envelopeBytes)).Err()
}
