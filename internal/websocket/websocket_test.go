package websocket

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

// received is an outbound event as a client would decode it
type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ReplyTo string          `json:"reply_to"`
}

// startHub runs a hub for the duration of the test
func startHub(t *testing.T, config HubConfig) *Hub {
	t.Helper()
	hub := NewHub(config)
	go hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub
}

// connect registers a connection without a network socket. It returns once
// the presence broadcast for the new binding has reached every client.
func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	client := NewClient(hub, nil, userID)
	hub.Register(client)
	nextOfType(t, client, MessageTypeGetOnlineUsers)
	return client
}

// next reads the next queued event of a client
func next(t *testing.T, c *Client) received {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg received
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no event for connection %s", c.ID)
		return received{}
	}
}

// nextOfType skips events until one of msgType arrives
func nextOfType(t *testing.T, c *Client, msgType string) received {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.send:
			require.True(t, ok, "send channel closed")
			var msg received
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %s event for connection %s", msgType, c.ID)
			return received{}
		}
	}
}

// drain discards queued events
func drain(c *Client) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// assertSilent checks nothing of msgType arrives within wait
func assertSilent(t *testing.T, c *Client, msgType string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			var msg received
			require.NoError(t, json.Unmarshal(data, &msg))
			assert.NotEqual(t, msgType, msg.Type, "unexpected %s event", msgType)
		case <-deadline:
			return
		}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.registry)
	assert.NotNil(t, hub.rooms)
	assert.NotNil(t, hub.typing)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.unicast)
	assert.NotNil(t, hub.roomcast)
	assert.NotNil(t, hub.stats)
	assert.NotNil(t, hub.handlers)
}

func TestNewHubFallsBackToDefaultRateLimit(t *testing.T) {
	hub := NewHub(HubConfig{})
	assert.Equal(t, DefaultRateLimitConfig(), hub.GetRateLimitConfig())
}

func TestRateLimiter(t *testing.T) {
	// Create a rate limiter allowing 5 per second with burst of 10
	rl := NewRateLimiter(5, 10)

	// Should allow first 10 requests (burst)
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}

	// Next request should be denied (no tokens left)
	assert.False(t, rl.Allow(), "Request 11 should be denied")

	// After waiting, should be allowed again
	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypeNewComment, CommentPayload{PostID: "p1"})

	assert.Equal(t, MessageTypeNewComment, msg.Type)
	assert.NotNil(t, msg.Payload)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNewReply(t *testing.T) {
	original := &Message{Type: MessageTypePing, ID: "original-id"}
	reply := NewReply(original, MessageTypePong, nil)

	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(errors.ErrValidation, "Something went wrong")

	assert.Equal(t, MessageTypeError, msg.Type)

	payload, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", payload.Code)
	assert.Equal(t, "Something went wrong", payload.Message)
	assert.NotZero(t, payload.Timestamp)
}

func TestMessageParsePayload(t *testing.T) {
	// Create message with map payload
	msg := NewMessage(MessageTypePing, map[string]interface{}{
		"client_time": float64(1234567890),
	})

	var ping PingPayload
	err := msg.ParsePayload(&ping)
	assert.NoError(t, err)
	assert.Equal(t, int64(1234567890), ping.ClientTime)
}

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"type":"joinPostRoom","id":"m1","payload":{"room":"post:abc"},"timestamp":1700000000000}`))
	require.NoError(t, err)

	assert.Equal(t, MessageTypeJoinPostRoom, msg.Type)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, int64(1700000000000), msg.Timestamp.UnixMilli())

	var room RoomPayload
	require.NoError(t, msg.ParsePayload(&room))
	assert.Equal(t, "post:abc", room.Room)
}

func TestDecodeMessageRFC3339Timestamp(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"type":"ping","timestamp":"2024-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, 2024, msg.Timestamp.Year())
	assert.Nil(t, msg.Payload)
}

func TestDecodeMessageRejectsBadInput(t *testing.T) {
	_, err := decodeMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = decodeMessage([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestMessageJSONSerialization(t *testing.T) {
	msg := NewMessage(MessageTypeMessagesSeen, MessagesSeenPayload{
		ConversationID: "c1",
		SeenMessages:   []string{"m1", "m2"},
		SeenBy:         "u2",
	})
	msg.ID = "msg-id"

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var parsed struct {
		Type    string              `json:"type"`
		ID      string              `json:"id"`
		Payload MessagesSeenPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, MessageTypeMessagesSeen, parsed.Type)
	assert.Equal(t, "msg-id", parsed.ID)
	assert.Equal(t, []string{"m1", "m2"}, parsed.Payload.SeenMessages)
	assert.Contains(t, string(data), `"conversationId":"c1"`)
}

func TestHubStats(t *testing.T) {
	hub := NewHub(DefaultHubConfig())

	stats := hub.GetStats()
	assert.Equal(t, int64(0), stats.TotalConnections)
	assert.Equal(t, int64(0), stats.ActiveConnections)
	assert.Equal(t, int64(0), stats.MessagesReceived)
	assert.Equal(t, int64(0), stats.MessagesSent)

	str := stats.String()
	assert.Contains(t, str, "connections=0/0")
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub(DefaultHubConfig())

	hub.RegisterHandler("test_type", func(ctx context.Context, client *Client, msg *Message) error {
		return nil
	})

	handler, ok := hub.GetHandler("test_type")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	_, ok = hub.GetHandler("nonexistent")
	assert.False(t, ok)
}

func TestMessageTypesUnique(t *testing.T) {
	types := []string{
		MessageTypeJoinPostRoom, MessageTypeLeavePostRoom, MessageTypeMarkMessagesAsSeen,
		MessageTypeResyncPost, MessageTypePing, MessageTypeHeartbeat,
		MessageTypeTyping, MessageTypeStopTyping,
		MessageTypeSystem, MessageTypePong, MessageTypeError, MessageTypeGetOnlineUsers, MessageTypePostState,
		MessageTypeNewPost, MessageTypePostDeleted, MessageTypePostBanned, MessageTypePostUnbanned,
		MessageTypeNewComment, MessageTypeNewReply,
		MessageTypeLikeUnlikePost, MessageTypeLikeUnlikeComment, MessageTypeLikeUnlikeReply,
		MessageTypeEditComment, MessageTypeEditReply, MessageTypeDeleteComment, MessageTypeDeleteReply,
		MessageTypeNewMessage, MessageTypeMessageDelivered, MessageTypeMessagesSeen,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ)
		assert.False(t, seen[typ], "Duplicate message type: %s", typ)
		seen[typ] = true
	}
}
