package hub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusFansOutToBothTopics(t *testing.T) {
	bus := NewBus()
	collSub := NewSubscriber(NextID(), 4)
	docSub := NewSubscriber(NextID(), 4)
	bus.Subscribe("collection:users:change", collSub)
	bus.Subscribe("document:users:u1:change", docSub)

	bus.Publish("insert", "users", "u1", map[string]string{"id": "u1"})

	select {
	case p := <-collSub.Queue:
		require.Equal(t, "collection:users:change", p.Topic)
		require.Equal(t, "insert", p.Op)
	default:
		t.Fatal("collection subscriber got nothing")
	}
	select {
	case p := <-docSub.Queue:
		require.Equal(t, "document:users:u1:change", p.Topic)
	default:
		t.Fatal("document subscriber got nothing")
	}
}

func TestSubscriberDropsOldestOnOverflow(t *testing.T) {
	s := NewSubscriber(NextID(), 1)
	s.Push(WsPayload{Op: "insert", Topic: "t"})
	s.Push(WsPayload{Op: "update", Topic: "t"})
	require.True(t, s.Degraded(), "want degraded after overflow")

	got := <-s.Queue
	require.Equal(t, "update", got.Op, "want newest payload retained")
}

func TestUnsubscribeAllRemovesFromEveryTopic(t *testing.T) {
	bus := NewBus()
	sub := NewSubscriber(NextID(), 4)
	bus.Subscribe("collection:a:change", sub)
	bus.Subscribe("collection:b:change", sub)
	bus.UnsubscribeAll(sub.ID)
	bus.Publish("insert", "a", "x", nil)

	select {
	case <-sub.Queue:
		t.Fatal("want no delivery after unsubscribe all")
	default:
	}
}
