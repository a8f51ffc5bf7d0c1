package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/testutil"
)

func TestTopicFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "topic:session:abc", TopicFor("abc"))
	assert.NotEqual(t, TopicFor("a"), TopicFor("b"))
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c := testutil.NewSimpleClient("c1")

	assert.True(t, h.Subscribe("t1", c))
	assert.False(t, h.Subscribe("t1", c), "duplicate subscribe is a no-op")
	assert.True(t, h.IsSubscribed("t1", "c1"))
	assert.Len(t, h.Subscribers("t1"), 1)

	assert.True(t, h.Unsubscribe("t1", "c1"))
	assert.False(t, h.Unsubscribe("t1", "c1"))
	assert.False(t, h.IsSubscribed("t1", "c1"))
	assert.Equal(t, 0, h.TopicCount())
}

func TestHub_UnsubscribeAll(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a := testutil.NewSimpleClient("a")
	b := testutil.NewSimpleClient("b")
	h.Subscribe("t1", a)
	h.Subscribe("t2", a)
	h.Subscribe("t2", b)

	removed := h.UnsubscribeAll("a")
	assert.ElementsMatch(t, []string{"t1", "t2"}, removed)
	assert.Equal(t, 1, h.TopicCount())
	assert.True(t, h.IsSubscribed("t2", "b"))
	assert.Empty(t, h.UnsubscribeAll("a"))
}

func TestHub_DeliverOnlyToTopic(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a := testutil.NewSimpleClient("a")
	b := testutil.NewSimpleClient("b")
	h.Subscribe(TopicFor("s1"), a)
	h.Subscribe(TopicFor("s2"), b)

	msg := codec.MustNewMessage(protocol.MsgGameUpdate, protocol.StateEnvelope{Success: true})
	n := h.Deliver(TopicFor("s1"), msg)

	assert.Equal(t, 1, n)
	assert.Len(t, a.Messages(), 1)
	assert.Empty(t, b.Messages(), "sessions do not see each other's updates")
	assert.Equal(t, 0, h.Deliver("nobody", msg))
}

func TestHub_Concurrent(t *testing.T) {
	t.Parallel()

	h := NewHub()
	msg := codec.MustNewMessage(protocol.MsgPong, protocol.PongPayload{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := testutil.NewSimpleClient(string(rune('a' + i%26)))
			h.Subscribe("t", c)
			h.Deliver("t", msg)
			h.UnsubscribeAll(c.GetID())
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, h.TopicCount())
}
