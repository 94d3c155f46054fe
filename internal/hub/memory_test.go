package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryPublishOrderPerSubscriber(t *testing.T) {
	m := NewMemory()
	ch, err := m.Subscribe("room-1", "sub-a")
	require.NoError(t, err)

	for _, payload := range []string{"one", "two", "three"} {
		require.NoError(t, m.Publish("room-1", []byte(payload)))
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case got := <-ch:
			require.Equal(t, want, string(got))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for publish")
		}
	}
}

func TestMemoryPublishReachesAllSubscribersIncludingSender(t *testing.T) {
	m := NewMemory()
	chA, _ := m.Subscribe("room-1", "a")
	chB, _ := m.Subscribe("room-1", "b")

	require.NoError(t, m.Publish("room-1", []byte("hello")))

	for _, ch := range []<-chan []byte{chA, chB} {
		select {
		case got := <-ch:
			require.Equal(t, "hello", string(got))
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive publish")
		}
	}
}

func TestMemoryUnsubscribePrunesEmptyRoom(t *testing.T) {
	m := NewMemory()
	m.Subscribe("room-1", "a")
	m.Unsubscribe("room-1", "a")

	_, ok := m.rooms["room-1"]
	require.False(t, ok, "empty room set is pruned")
}

func TestMemoryCrossRoomIsolation(t *testing.T) {
	m := NewMemory()
	chA, _ := m.Subscribe("room-1", "a")
	chB, _ := m.Subscribe("room-2", "b")

	require.NoError(t, m.Publish("room-1", []byte("only-room-1")))

	select {
	case got := <-chA:
		require.Equal(t, "only-room-1", string(got))
	case <-time.After(time.Second):
		t.Fatal("room-1 subscriber missed its publish")
	}

	select {
	case <-chB:
		t.Fatal("room-2 subscriber should not observe room-1 traffic")
	case <-time.After(50 * time.Millisecond):
	}
}
