package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/gamestate/internal/apperrors"
	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/server/broadcast"
	"github.com/palemoky/gamestate/internal/server/coordinator"
	"github.com/palemoky/gamestate/internal/server/storage"
	"github.com/palemoky/gamestate/internal/testutil"
)

func newTestHandler(t *testing.T) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	coord := coordinator.New(storage.NewRedisStore(client))
	h := NewHandler(HandlerDeps{
		Coordinator: coord,
		Gateway:     broadcast.NewGateway(broadcast.NewHub(), nil, ""),
	})
	return h, mr
}

func request(t *testing.T, msgType protocol.MessageType, sessionID string) *protocol.Message {
	t.Helper()
	return codec.MustNewMessage(msgType, protocol.SessionRequest{SessionID: sessionID})
}

func envelopeOf(t *testing.T, msg *protocol.Message) *protocol.StateEnvelope {
	t.Helper()
	require.NotNil(t, msg)
	env, err := codec.ParsePayload[protocol.StateEnvelope](msg)
	require.NoError(t, err)
	return env
}

func errorCodeOf(t *testing.T, msg *protocol.Message) int {
	t.Helper()
	require.NotNil(t, msg)
	require.Equal(t, protocol.MsgError, msg.Type)
	p, err := codec.ParsePayload[protocol.ErrorPayload](msg)
	require.NoError(t, err)
	return p.Code
}

func TestHandler_GetState_CreatesDefault(t *testing.T) {
	t.Parallel()

	h, mr := newTestHandler(t)
	c := testutil.NewSimpleClient("c1")

	h.Handle(context.Background(), c, request(t, protocol.MsgGetState, "s1"))

	require.Len(t, c.Messages(), 1)
	msg := c.Last()
	assert.Equal(t, protocol.MsgGameState, msg.Type)

	env := envelopeOf(t, msg)
	assert.True(t, env.Success)
	assert.Equal(t, "Game state retrieved successfully", env.Message)
	require.NotNil(t, env.State)
	assert.Equal(t, "s1", env.State.SessionID)
	assert.Equal(t, game.PhaseWaitingForPlayers, env.State.Phase)
	assert.Equal(t, 1, env.State.PlayerCount)
	assert.Equal(t, game.DefaultPlayer, env.State.CurrentPlayer)
	assert.True(t, mr.Exists("game:state:s1"))
}

func TestHandler_GetState_Idempotent(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	c := testutil.NewSimpleClient("c1")
	ctx := context.Background()

	h.Handle(ctx, c, request(t, protocol.MsgGetState, "s1"))
	first := envelopeOf(t, c.Last())
	h.Handle(ctx, c, request(t, protocol.MsgGetState, "s1"))
	second := envelopeOf(t, c.Last())

	assert.True(t, first.State.Equal(second.State))
}

func TestHandler_GetState_IsUnicast(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	caller := testutil.NewSimpleClient("caller")
	watcher := testutil.NewSimpleClient("watcher")
	ctx := context.Background()

	h.Handle(ctx, watcher, request(t, protocol.MsgSubscribe, "s1"))
	watcher.Reset()

	h.Handle(ctx, caller, request(t, protocol.MsgGetState, "s1"))

	assert.Len(t, caller.Messages(), 1)
	assert.Empty(t, watcher.Messages())
}

func TestHandler_GetState_StoreDown(t *testing.T) {
	t.Parallel()

	h, mr := newTestHandler(t)
	mr.Close()
	c := testutil.NewSimpleClient("c1")

	h.Handle(context.Background(), c, request(t, protocol.MsgGetState, "s1"))

	env := envelopeOf(t, c.Last())
	assert.False(t, env.Success)
	assert.Nil(t, env.State)
	assert.Contains(t, env.Message, "Failed to retrieve game state: ")
	assert.Contains(t, env.Message, "store unavailable")
}

func TestHandler_JoinGame_BroadcastsToSession(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	ctx := context.Background()
	alice := testutil.NewSimpleClient("alice")
	bob := testutil.NewSimpleClient("bob")
	stranger := testutil.NewSimpleClient("stranger")

	h.Handle(ctx, stranger, request(t, protocol.MsgSubscribe, "other"))
	stranger.Reset()

	h.Handle(ctx, alice, request(t, protocol.MsgJoinGame, "s1"))

	require.Len(t, alice.Messages(), 1, "joiner receives exactly one broadcast")
	env := envelopeOf(t, alice.Last())
	assert.Equal(t, protocol.MsgGameUpdate, alice.Last().Type)
	assert.True(t, env.Success)
	assert.Equal(t, "Successfully joined game", env.Message)
	assert.Equal(t, 1, env.State.PlayerCount)
	assert.Equal(t, game.PhaseWaitingForPlayers, env.State.Phase)

	h.Handle(ctx, bob, request(t, protocol.MsgJoinGame, "s1"))

	for _, c := range []*testutil.SimpleClient{alice, bob} {
		env := envelopeOf(t, c.Last())
		assert.Equal(t, 2, env.State.PlayerCount, c.ID)
		assert.Equal(t, game.PhaseReadyToStart, env.State.Phase, c.ID)
	}
	assert.Empty(t, stranger.Messages(), "other sessions are not notified")
}

func TestHandler_LeaveGame(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	ctx := context.Background()
	alice := testutil.NewSimpleClient("alice")
	bob := testutil.NewSimpleClient("bob")

	h.Handle(ctx, alice, request(t, protocol.MsgJoinGame, "s1"))
	h.Handle(ctx, bob, request(t, protocol.MsgJoinGame, "s1"))
	h.Handle(ctx, bob, request(t, protocol.MsgLeaveGame, "s1"))

	env := envelopeOf(t, alice.Last())
	assert.True(t, env.Success)
	assert.Equal(t, "Successfully left game", env.Message)
	assert.Equal(t, 1, env.State.PlayerCount)
	assert.Equal(t, game.PhaseWaitingForPlayers, env.State.Phase)

	assert.Equal(t, env, envelopeOf(t, bob.Last()), "leaver still sees its own leave")

	h.Handle(ctx, alice, request(t, protocol.MsgLeaveGame, "s1"))
	env = envelopeOf(t, alice.Last())
	assert.Equal(t, 0, env.State.PlayerCount)
	assert.Equal(t, game.PhaseEnded, env.State.Phase)
}

func TestHandler_LeaveGame_UnsubscribedCallerGetsReply(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	c := testutil.NewSimpleClient("c1")

	h.Handle(context.Background(), c, request(t, protocol.MsgLeaveGame, "fresh"))

	require.Len(t, c.Messages(), 1)
	env := envelopeOf(t, c.Last())
	assert.True(t, env.Success)
	assert.Equal(t, 0, env.State.PlayerCount)
	assert.Equal(t, game.PhaseEnded, env.State.Phase)
}

func TestHandler_JoinGame_StoreDownBroadcastsFailure(t *testing.T) {
	t.Parallel()

	h, mr := newTestHandler(t)
	ctx := context.Background()
	watcher := testutil.NewSimpleClient("watcher")
	joiner := testutil.NewSimpleClient("joiner")

	h.Handle(ctx, watcher, request(t, protocol.MsgSubscribe, "s1"))
	watcher.Reset()
	mr.Close()

	h.Handle(ctx, joiner, request(t, protocol.MsgJoinGame, "s1"))

	for _, c := range []*testutil.SimpleClient{watcher, joiner} {
		require.Len(t, c.Messages(), 1, c.ID)
		env := envelopeOf(t, c.Last())
		assert.False(t, env.Success)
		assert.Nil(t, env.State)
		assert.Contains(t, env.Message, "Failed to join game: ")
	}
}

func TestHandler_Subscribe(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	ctx := context.Background()
	c := testutil.NewSimpleClient("c1")

	h.Handle(ctx, c, request(t, protocol.MsgSubscribe, "s1"))
	require.Equal(t, protocol.MsgSubscribed, c.Last().Type)
	p, err := codec.ParsePayload[protocol.SubscribedPayload](c.Last())
	require.NoError(t, err)
	assert.Equal(t, "topic:session:s1", p.Topic)
	assert.True(t, p.Subscribed)

	h.Handle(ctx, c, request(t, protocol.MsgUnsubscribe, "s1"))
	p, err = codec.ParsePayload[protocol.SubscribedPayload](c.Last())
	require.NoError(t, err)
	assert.False(t, p.Subscribed)
	assert.False(t, h.hub.IsSubscribed("topic:session:s1", "c1"))
}

func TestHandler_ClientGone(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	ctx := context.Background()
	c := testutil.NewSimpleClient("c1")
	h.Handle(ctx, c, request(t, protocol.MsgJoinGame, "s1"))
	h.Handle(ctx, c, request(t, protocol.MsgSubscribe, "s2"))

	h.ClientGone("c1")
	assert.Equal(t, 0, h.hub.TopicCount())
}

func TestHandler_Ping(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	c := testutil.NewSimpleClient("c1")

	h.Handle(context.Background(), c, codec.MustNewMessage(protocol.MsgPing, protocol.PingPayload{Timestamp: 42}))

	require.Equal(t, protocol.MsgPong, c.Last().Type)
	p, err := codec.ParsePayload[protocol.PongPayload](c.Last())
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ClientTimestamp)
	assert.Positive(t, p.ServerTimestamp)
}

func TestHandler_InvalidRequests(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *protocol.Message
		code int
	}{
		{"unknown type", &protocol.Message{Type: "teleport"}, protocol.ErrCodeInvalidMsg},
		{"missing payload", &protocol.Message{Type: protocol.MsgGetState}, protocol.ErrCodeInvalidMsg},
		{"malformed payload", &protocol.Message{Type: protocol.MsgJoinGame, Payload: []byte(`"oops"`)}, protocol.ErrCodeInvalidMsg},
		{"empty session id", request(t, protocol.MsgLeaveGame, ""), protocol.ErrCodeMissingSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testutil.NewSimpleClient("c1")
			h.Handle(ctx, c, tt.msg)
			require.Len(t, c.Messages(), 1)
			assert.Equal(t, tt.code, errorCodeOf(t, c.Last()))
		})
	}
}

func TestHandler_JoinDuringMaintenance(t *testing.T) {
	t.Parallel()

	server := new(testutil.MockServer)
	server.On("IsMaintenanceMode").Return(true)

	h := NewHandler(HandlerDeps{
		Server:      server,
		Coordinator: &stubCoordinator{},
		Gateway:     broadcast.NewGateway(broadcast.NewHub(), nil, ""),
	})
	c := testutil.NewSimpleClient("c1")
	h.Handle(context.Background(), c, request(t, protocol.MsgJoinGame, "s1"))

	env := envelopeOf(t, c.Last())
	assert.False(t, env.Success)
	assert.Equal(t, "Failed to join game: "+apperrors.ErrMaintenance.Message, env.Message)
	assert.False(t, h.hub.IsSubscribed(broadcast.TopicFor("s1"), "c1"), "rejected join must not subscribe")
	assert.Zero(t, h.hub.TopicCount())
	server.AssertExpectations(t)
}

// stubCoordinator 可控的协调器
type stubCoordinator struct {
	update func() (*game.State, error)
}

func (s *stubCoordinator) UpdateState(context.Context, string, game.Transition) (*game.State, error) {
	return s.update()
}

func (s *stubCoordinator) EnsureDefault(context.Context, string) (*game.State, error) {
	return s.update()
}

func TestHandler_PanicBecomesFailureEnvelope(t *testing.T) {
	t.Parallel()

	h := NewHandler(HandlerDeps{
		Coordinator: &stubCoordinator{update: func() (*game.State, error) { panic("bad wiring") }},
		Gateway:     broadcast.NewGateway(broadcast.NewHub(), nil, ""),
	})
	ctx := context.Background()

	tests := []struct {
		msgType     protocol.MessageType
		wantType    protocol.MessageType
		prefix      string
		toSubscribe bool
	}{
		{protocol.MsgGetState, protocol.MsgGameState, "Failed to retrieve game state: ", false},
		{protocol.MsgJoinGame, protocol.MsgGameUpdate, "Failed to join game: ", true},
		{protocol.MsgLeaveGame, protocol.MsgGameUpdate, "Failed to leave game: ", true},
	}
	for _, tt := range tests {
		sessionID := "s-" + string(tt.msgType)
		watcher := testutil.NewSimpleClient("w-" + string(tt.msgType))
		h.hub.Subscribe(broadcast.TopicFor(sessionID), watcher)

		c := testutil.NewSimpleClient("c-" + string(tt.msgType))
		assert.NotPanics(t, func() {
			h.Handle(ctx, c, request(t, tt.msgType, sessionID))
		})
		require.Len(t, c.Messages(), 1, tt.msgType)
		last := c.Last()
		assert.Equal(t, tt.wantType, last.Type)
		env := envelopeOf(t, last)
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, tt.prefix)
		assert.Contains(t, env.Message, "bad wiring")

		if !tt.toSubscribe {
			assert.Empty(t, watcher.Messages(), tt.msgType)
			continue
		}
		require.Len(t, watcher.Messages(), 1, tt.msgType)
		wenv := envelopeOf(t, watcher.Last())
		assert.False(t, wenv.Success)
		assert.Equal(t, env.Message, wenv.Message)
	}
}

func TestHandler_TransitionErrorIsReported(t *testing.T) {
	t.Parallel()

	h := NewHandler(HandlerDeps{
		Coordinator: &stubCoordinator{update: func() (*game.State, error) {
			return nil, apperrors.New(apperrors.TransitionFailure, "update", "s1", errors.New("rejected"))
		}},
		Gateway: broadcast.NewGateway(broadcast.NewHub(), nil, ""),
	})
	c := testutil.NewSimpleClient("c1")
	h.Handle(context.Background(), c, request(t, protocol.MsgJoinGame, "s1"))

	env := envelopeOf(t, c.Last())
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "transition failure")
}

func TestUpdateMessage(t *testing.T) {
	t.Parallel()

	s := game.NewDefault("s1", time.Now())
	msg := UpdateMessage(s)
	assert.Equal(t, protocol.MsgGameUpdate, msg.Type)
	env := envelopeOf(t, msg)
	assert.True(t, env.Success)
	assert.Equal(t, "Game state updated", env.Message)
}
