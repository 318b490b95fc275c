package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	b := New[string](4)
	sub := b.Subscribe()

	b.Publish("one")
	b.Publish("two")

	require.Equal(t, "one", <-sub.Events)
	require.Equal(t, "two", <-sub.Events)
}

func TestSubscribeDoesNotReplayPriorEvents(t *testing.T) {
	b := New[string](4)
	b.Publish("before")

	sub := b.Subscribe()
	b.Publish("after")

	require.Equal(t, "after", <-sub.Events)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New[string](4)
	require.NotPanics(t, func() { b.Publish("anything") })
}

func TestFullBufferDropsOldestAndCounts(t *testing.T) {
	b := New[int](2)
	sub := b.Subscribe()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3) // buffer has capacity 2; 1 should be dropped

	require.Equal(t, uint64(1), sub.Dropped())
	require.Equal(t, 2, <-sub.Events)
	require.Equal(t, 3, <-sub.Events)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[string](4)
	sub := b.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events
	require.False(t, ok)
	require.Equal(t, 0, b.SubscriberCount())
}
