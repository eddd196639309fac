package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Upper bound on how long a dead peer goes unnoticed
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Send buffer size
	sendBufferSize = 256
)

var (
	errSendClosed     = stderrors.New("client connection closed")
	errSendBufferFull = stderrors.New("send buffer full")
)

// Client represents a single WebSocket connection
type Client struct {
	// ID uniquely identifies the connection for the registry and rooms
	ID string

	// The websocket connection
	conn *websocket.Conn

	// Hub reference
	hub *Hub

	// UserID is the identity verified at admission
	UserID string

	// Buffered channel of outbound messages, closed once by closeSend
	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool

	// Connection metadata
	ConnectedAt time.Time
	LastPingAt  time.Time
	RemoteAddr  string
	UserAgent   string

	// Rate limiting
	rateLimiter *RateLimiter

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex for connection state
	mu sync.RWMutex

	// Closed flag
	closed bool
}

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	// Refill tokens
	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	// Check and consume
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// NewClient creates a new Client with a fresh connection id
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		ID:          uuid.New().String(),
		hub:         hub,
		conn:        conn,
		UserID:      userID,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(config.MaxMessagesPerSecond, config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the connection closes
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	// Set read limit
	c.conn.SetReadLimit(maxMessageSize)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// No read deadline: an expired read context closes the connection, and
		// the write pump's ping already detects dead peers
		_, data, err := c.conn.Read(c.ctx)

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Client disconnected normally",
					logger.WithUserID(c.UserID),
					logger.WithConnectionID(c.ID))
			} else if c.ctx.Err() == nil {
				// Only log errors if we're not shutting down
				logger.Log.Warn("Read error for client",
					logger.WithUserID(c.UserID),
					logger.WithConnectionID(c.ID),
					zap.Error(err))
				c.hub.stats.Errors.Add(1)
			}
			return
		}

		// Rate limiting
		if !c.rateLimiter.Allow() {
			c.SendError(errors.ErrRateLimited, "Too many messages, please slow down")
			c.hub.stats.Errors.Add(1)
			metrics.RecordRateLimitExceeded("/ws", "signal")
			continue
		}

		c.hub.stats.MessagesReceived.Add(1)

		message, err := decodeMessage(data)
		if err != nil {
			logger.Log.Warn("WebSocket JSON parse error",
				logger.WithUserID(c.UserID),
				logger.WithConnectionID(c.ID),
				zap.Error(err))
			c.SendError(errors.ErrInvalidJSON, "Failed to parse message")
			continue
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				c.closeConn(websocket.StatusNormalClosure, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Warn("Write error for client",
						logger.WithUserID(c.UserID),
						logger.WithConnectionID(c.ID),
						zap.Error(err))
					c.hub.stats.Errors.Add(1)
				}
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Debug("Ping failed for client",
					logger.WithUserID(c.UserID),
					logger.WithConnectionID(c.ID),
					zap.Error(err))
				return
			}
		}
	}
}

// inboundMessage keeps the payload raw until a handler picks its type
type inboundMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ID        string          `json:"id,omitempty"`
	Timestamp *FlexibleTime   `json:"timestamp,omitempty"`
}

func decodeMessage(data []byte) (*Message, error) {
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}

	message := &Message{Type: in.Type, ID: in.ID}
	if len(in.Payload) > 0 && string(in.Payload) != "null" {
		message.Payload = in.Payload
	}
	if in.Timestamp != nil {
		message.Timestamp = *in.Timestamp
	}
	return message, nil
}

// handleMessage routes incoming messages to appropriate handlers. A panicking
// handler is answered with an error event and the connection stays open.
func (c *Client) handleMessage(message *Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Handler panic",
				logger.WithUserID(c.UserID),
				logger.WithConnectionID(c.ID),
				logger.WithEventType(message.Type),
				zap.Any("panic", r))
			metrics.RecordError("panic", message.Type)
			c.hub.stats.Errors.Add(1)
			c.SendError(errors.ErrInternalError, fmt.Sprintf("Failed to process %s", message.Type))
		}
	}()

	// Update timestamp if not set
	if message.Timestamp.IsZero() {
		message.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}

	metrics.RecordMessageReceived(message.Type)

	ctx, span := telemetry.GetRealtimeEvents().TraceClientSignal(c.ctx, message.Type, c.UserID, c.ID)
	defer span.End()

	// Handle built-in message types
	switch message.Type {
	case MessageTypePing, MessageTypeHeartbeat:
		c.handlePing(message)
		return
	}

	handler, ok := c.hub.GetHandler(message.Type)
	if !ok {
		logger.Log.Warn("Unknown message type",
			logger.WithUserID(c.UserID),
			logger.WithEventType(message.Type))
		c.SendError(errors.ErrUnknownEvent, fmt.Sprintf("Unknown message type: %s", message.Type))
		return
	}

	if err := handler(ctx, c, message); err != nil {
		telemetry.RecordError(span, err)
		apiErr := errors.As(err)
		if apiErr.Code == errors.ErrInternalError {
			logger.Log.Error("Handler error",
				logger.WithUserID(c.UserID),
				logger.WithEventType(message.Type),
				zap.Error(err))
			metrics.RecordError("handler", message.Type)
			c.hub.stats.Errors.Add(1)
		}
		reply := NewErrorMessage(apiErr.Code, apiErr.Message)
		reply.ReplyTo = message.ID
		_ = c.Send(reply)
	}
}

// handlePing responds to ping messages with pong
func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := PongPayload{
		Timestamp:  serverTime,
		ClientTime: ping.ClientTime,
	}
	if ping.ClientTime > 0 {
		pong.Latency = serverTime - ping.ClientTime
	}

	// Best-effort pong response - connection may be closing
	_ = c.Send(NewReply(message, MessageTypePong, pong))
}

// Send queues a message for this client only
func (c *Client) Send(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	if err := c.enqueue(data); err != nil {
		return err
	}
	c.hub.stats.MessagesSent.Add(1)
	metrics.RecordMessageSent(message.Type)
	return nil
}

// SendError sends an error event scoped to this connection
func (c *Client) SendError(code errors.ErrorCode, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

// enqueue never blocks; the send mutex keeps it from racing closeSend
func (c *Client) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return errSendClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) sendIsClosed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sendClosed
}

// closeSend closes the outbound channel once; the write pump drains what
// is queued and then closes the connection
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.closeConn(websocket.StatusNormalClosure, "closing")
}

func (c *Client) closeConn(code websocket.StatusCode, reason string) {
	if c.conn != nil {
		_ = c.conn.Close(code, reason)
	}
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// GetInfo returns client information
func (c *Client) GetInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		ConnectionID: c.ID,
		UserID:       c.UserID,
		ConnectedAt:  c.ConnectedAt,
		LastPingAt:   c.LastPingAt,
		RemoteAddr:   c.RemoteAddr,
		UserAgent:    c.UserAgent,
	}
}

// ClientInfo represents public client information
type ClientInfo struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastPingAt   time.Time `json:"last_ping_at"`
	RemoteAddr   string    `json:"remote_addr"`
	UserAgent    string    `json:"user_agent"`
}
