package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlineUsers(t *testing.T, msg received) []string {
	t.Helper()
	require.Equal(t, MessageTypeGetOnlineUsers, msg.Type)
	var payload OnlineUsersPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload.UserIDs
}

func TestHubPresenceBroadcastOnConnect(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())

	alice := NewClient(hub, nil, "alice")
	hub.Register(alice)
	assert.Equal(t, []string{"alice"}, onlineUsers(t, next(t, alice)))

	bob := NewClient(hub, nil, "bob")
	hub.Register(bob)
	assert.Equal(t, []string{"alice", "bob"}, onlineUsers(t, next(t, alice)))
	assert.Equal(t, []string{"alice", "bob"}, onlineUsers(t, next(t, bob)))
}

func TestHubPresenceUniqueness(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())

	first := connect(t, hub, "u1")
	second := connect(t, hub, "u1")

	assert.Equal(t, []string{"u1"}, hub.GetOnlineUsers())
	conn, ok := hub.Registry().Resolve("u1")
	require.True(t, ok)
	assert.Equal(t, second.ID, conn)
	assert.Equal(t, 2, hub.ConnectionCount(), "superseded connection stays open")

	// both connections still get global events
	drain(first)
	drain(second)
	hub.Broadcast(NewMessage(MessageTypePostBanned, PostRefPayload{PostID: "p1"}))
	assert.Equal(t, MessageTypePostBanned, next(t, first).Type)
	assert.Equal(t, MessageTypePostBanned, next(t, second).Type)
}

func TestHubStaleUnbindKeepsPresence(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())

	watcher := connect(t, hub, "watcher")
	first := connect(t, hub, "u1")
	second := connect(t, hub, "u1")
	drain(watcher)

	hub.Unregister(first)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 5*time.Millisecond)

	assert.True(t, hub.IsUserOnline("u1"))
	conn, _ := hub.Registry().Resolve("u1")
	assert.Equal(t, second.ID, conn)
	assertSilent(t, watcher, MessageTypeGetOnlineUsers, 50*time.Millisecond)

	hub.Unregister(second)
	assert.Equal(t, []string{"watcher"}, onlineUsers(t, nextOfType(t, watcher, MessageTypeGetOnlineUsers)))
	assert.False(t, hub.IsUserOnline("u1"))
}

func TestHubUnregisterBeforeLoopLeavesNothingBound(t *testing.T) {
	for i := 0; i < 50; i++ {
		hub := NewHub(DefaultHubConfig())
		client := NewClient(hub, nil, "u1")
		hub.Register(client)
		hub.Unregister(client)

		go hub.Run()
		require.Eventually(t, func() bool {
			return len(hub.register) == 0 && len(hub.unregister) == 0
		}, time.Second, time.Millisecond)

		// the loop handles one request at a time, so the watcher is bound
		// only after both requests above were fully applied
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.True(t, hub.RegisterWait(ctx, NewClient(hub, nil, "watcher")))

		assert.False(t, hub.IsUserOnline("u1"), "iteration %d", i)
		assert.Equal(t, 1, hub.ConnectionCount(), "iteration %d", i)
		assert.True(t, client.sendIsClosed(), "iteration %d", i)

		require.NoError(t, hub.Shutdown(ctx))
		cancel()
	}
}

func TestHubRegisterWaitRefusesClosedClient(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	client := NewClient(hub, nil, "u1")
	client.closeSend()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.False(t, hub.RegisterWait(ctx, client))
	assert.False(t, hub.IsUserOnline("u1"))
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHubRegisterWaitThenJoinRoom(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	client := NewClient(hub, nil, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, hub.RegisterWait(ctx, client))

	require.NoError(t, hub.JoinRoom(client, "post:42"))
	assert.Equal(t, []string{client.ID}, hub.Rooms().Members("post:42"))
}

func TestHubRegisterWaitAfterShutdown(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	assert.False(t, hub.RegisterWait(ctx, NewClient(hub, nil, "u1")))
}

func TestHubRefusesSentinelUser(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())

	client := NewClient(hub, nil, "undefined")
	hub.Register(client)

	require.Eventually(t, client.IsClosed, time.Second, 5*time.Millisecond)
	assert.Empty(t, hub.GetOnlineUsers())
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHubSilentMissForUnboundUser(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	alice := connect(t, hub, "alice")
	drain(alice)

	hub.SendToUser("nobody", NewMessage(MessageTypeNewMessage, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.False(t, hub.SendToUserWait(ctx, "nobody", NewMessage(MessageTypeNewMessage, nil)))
	assert.True(t, hub.SendToUserWait(ctx, "alice", NewMessage(MessageTypeNewMessage, nil)))

	assert.Equal(t, MessageTypeNewMessage, next(t, alice).Type)
	assertSilent(t, alice, MessageTypeNewMessage, 30*time.Millisecond)
}

func TestHubRoomIsolation(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())

	inRoom := connect(t, hub, "u1")
	otherRoom := connect(t, hub, "u2")
	noRoom := connect(t, hub, "u3")

	require.NoError(t, hub.JoinRoom(inRoom, "post:p1"))
	require.NoError(t, hub.JoinRoom(otherRoom, "post:p2"))
	drain(inRoom)
	drain(otherRoom)
	drain(noRoom)

	hub.BroadcastToRoom("post:p1", NewMessage(MessageTypeNewComment, CommentPayload{PostID: "p1"}))

	assert.Equal(t, MessageTypeNewComment, next(t, inRoom).Type)
	assertSilent(t, otherRoom, MessageTypeNewComment, 30*time.Millisecond)
	assertSilent(t, noRoom, MessageTypeNewComment, 30*time.Millisecond)
}

func TestHubJoinRoomValidation(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	client := connect(t, hub, "u1")

	err := hub.JoinRoom(client, "conversation:c1")
	assert.True(t, errors.Is(err, ErrInvalidRoom))

	stranger := NewClient(hub, nil, "u2")
	assert.Error(t, hub.JoinRoom(stranger, "post:p1"), "unregistered connection cannot join")
}

func TestHubDisconnectLeavesRooms(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	client := connect(t, hub, "u1")
	require.NoError(t, hub.JoinRoom(client, "post:p1"))
	require.NoError(t, hub.JoinRoom(client, "post:p2"))

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.Rooms().Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, hub.Rooms().Rooms(client.ID))
}

func TestHubLeaveRoom(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	client := connect(t, hub, "u1")
	require.NoError(t, hub.JoinRoom(client, "post:p1"))
	drain(client)

	assert.True(t, hub.LeaveRoom(client, "post:p1"))
	assert.False(t, hub.LeaveRoom(client, "post:p1"))

	hub.BroadcastToRoom("post:p1", NewMessage(MessageTypeNewComment, nil))
	assertSilent(t, client, MessageTypeNewComment, 30*time.Millisecond)
}

func TestHubDisconnectClearsTyping(t *testing.T) {
	participants := &staticParticipants{members: map[string][]string{"conv1": {"u1", "u2"}}}
	config := DefaultHubConfig()
	config.Participants = participants
	config.Typing = TypingConfig{Debounce: 10 * time.Millisecond, IdleTimeout: 5 * time.Second}
	hub := startHub(t, config)

	typist := connect(t, hub, "u1")
	peer := connect(t, hub, "u2")

	hub.Typing().OnTyping("conv1", "u1")
	nextOfType(t, peer, MessageTypeTyping)

	hub.Unregister(typist)
	msg := nextOfType(t, peer, MessageTypeStopTyping)

	var payload TypingPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, TypingPayload{ConversationID: "conv1", UserID: "u1"}, payload)
	assert.Empty(t, hub.Typing().TypingUsers("conv1"))
}

func TestHubSlowClientIsDisconnected(t *testing.T) {
	hub := startHub(t, DefaultHubConfig())
	connect(t, hub, "slow")

	// fill the buffer without draining
	for i := 0; i < sendBufferSize+1; i++ {
		hub.SendToUser("slow", NewMessage(MessageTypeNewMessage, nil))
	}

	require.Eventually(t, func() bool { return !hub.IsUserOnline("slow") }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, hub.GetStats().ConnectionsDropped, int64(1))
	assert.Equal(t, 0, hub.ConnectionCount())
}

// recordingSink captures presence transitions
type recordingSink struct {
	mu      sync.Mutex
	changes []bool
}

func (s *recordingSink) SetPresence(_ context.Context, _ string, online bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, online)
	return nil
}

func (s *recordingSink) snapshot() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.changes...)
}

func TestHubPushesPresenceToSinks(t *testing.T) {
	sink := &recordingSink{}
	config := DefaultHubConfig()
	config.PresenceSinks = []PresenceSink{sink}
	hub := startHub(t, config)

	client := connect(t, hub, "u1")
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(client)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, sink.snapshot())
}

func TestHubShutdownNotifiesClients(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	go hub.Run()

	client := connect(t, hub, "u1")
	drain(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.True(t, hub.Closed())

	var messages []received
	for data := range client.send {
		var msg received
		require.NoError(t, json.Unmarshal(data, &msg))
		messages = append(messages, msg)
	}
	require.Len(t, messages, 1)
	assert.Equal(t, MessageTypeSystem, messages[0].Type)
	assert.Contains(t, string(messages[0].Payload), "server_shutdown")
}
