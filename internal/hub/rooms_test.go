package hub

import (
	"slices"
	"testing"
)

func TestSubscribeIsIdempotent(t *testing.T) {
	var ps LocalPubSub
	ps.Setup()

	ps.Subscribe("channel:1", 11)
	ps.Subscribe("channel:1", 11)
	ps.Subscribe("channel:1", 22)

	sessions := ps.Sessions("channel:1")
	slices.Sort(sessions)

	want := []int64{11, 22}
	if !slices.Equal(sessions, want) {
		t.Errorf("Sessions() = %v, want %v", sessions, want)
	}
}

func TestUnsubscribe(t *testing.T) {
	var ps LocalPubSub
	ps.Setup()

	ps.Subscribe("channel:1", 11)
	ps.Subscribe("channel:1", 22)
	ps.Unsubscribe("channel:1", 11)

	if sessions := ps.Sessions("channel:1"); !slices.Equal(sessions, []int64{22}) {
		t.Errorf("Sessions() = %v, want [22]", sessions)
	}

	// unsubscribing twice or from an unknown room must not panic
	ps.Unsubscribe("channel:1", 11)
	ps.Unsubscribe("channel:999", 11)
}

func TestUnsubscribeFromAll(t *testing.T) {
	var ps LocalPubSub
	ps.Setup()

	ps.Subscribe("channel:1", 11)
	ps.Subscribe("dm:2", 11)
	ps.Subscribe("user:3", 11)
	ps.Subscribe("channel:1", 22)

	ps.UnsubscribeFromAll(11)

	if sessions := ps.Sessions("channel:1"); !slices.Equal(sessions, []int64{22}) {
		t.Errorf("Sessions(channel:1) = %v, want [22]", sessions)
	}
	if sessions := ps.Sessions("dm:2"); len(sessions) != 0 {
		t.Errorf("Sessions(dm:2) = %v, want empty", sessions)
	}
	if sessions := ps.Sessions("user:3"); len(sessions) != 0 {
		t.Errorf("Sessions(user:3) = %v, want empty", sessions)
	}
}

func TestSessionsReturnsCopy(t *testing.T) {
	var ps LocalPubSub
	ps.Setup()

	ps.Subscribe("channel:1", 11)
	ps.Subscribe("channel:1", 22)

	sessions := ps.Sessions("channel:1")
	sessions[0] = 999

	fresh := ps.Sessions("channel:1")
	slices.Sort(fresh)
	if !slices.Equal(fresh, []int64{11, 22}) {
		t.Errorf("mutating a returned slice leaked into the room: %v", fresh)
	}
}

func TestRoomKeyNamespaces(t *testing.T) {
	if ChannelRoom(5) == DMRoom(5) {
		t.Error("channel and DM rooms with the same id must not collide")
	}
	if ChannelRoom(5) == UserRoom(5) {
		t.Error("channel and user rooms with the same id must not collide")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	frame, err := encodeFrame("new_message", map[string]int64{"id": 42})
	if err != nil {
		t.Fatal(err)
	}

	event, payload, err := decodeFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if event != "new_message" {
		t.Errorf("event = %q, want new_message", event)
	}
	if string(payload) != `{"id":42}` {
		t.Errorf("payload = %s", payload)
	}

	if _, _, err := decodeFrame([]byte("no separator here")); err == nil {
		t.Error("frame without separator should fail to decode")
	}
}
