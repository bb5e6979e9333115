package presence

import "sync"

// Tracker records which users currently hold at least one live realtime
// connection. Presence is ephemeral: state lives for the process lifetime
// only. The interface exists so a distributed-backed implementation can be
// swapped in without touching the hub.
type Tracker interface {
	// Connect registers one connection and reports whether the user just
	// came online (first live connection).
	Connect(userID int64) bool
	// Disconnect drops one connection and reports whether the user just
	// went offline (last live connection gone).
	Disconnect(userID int64) bool
	IsOnline(userID int64) bool
	OnlineSnapshot() []int64
}

// LocalTracker reference-counts connections per user, so several tabs from
// the same user never flicker the user offline.
type LocalTracker struct {
	mutex       sync.Mutex
	connections map[int64]int
}

func NewLocalTracker() *LocalTracker {
	return &LocalTracker{connections: make(map[int64]int)}
}

func (t *LocalTracker) Connect(userID int64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.connections[userID]++
	return t.connections[userID] == 1
}

func (t *LocalTracker) Disconnect(userID int64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	count, exists := t.connections[userID]
	if !exists {
		return false
	}

	if count <= 1 {
		delete(t.connections, userID)
		return true
	}

	t.connections[userID] = count - 1
	return false
}

func (t *LocalTracker) IsOnline(userID int64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.connections[userID] > 0
}

func (t *LocalTracker) OnlineSnapshot() []int64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	online := make([]int64, 0, len(t.connections))
	for userID := range t.connections {
		online = append(online, userID)
	}
	return online
}
