// Package websocket provides the realtime layer: connection registry,
// presence, typing indicators, post rooms and event relay.
// Uses github.com/coder/websocket - the modern, context-aware WebSocket library for Go.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"go.uber.org/zap"
)

// Hub owns every open connection. Its Run loop serialises registration,
// unregistration and outbound fan-out.
type Hub struct {
	// All open clients by connection id, superseded connections included
	clients map[string]*Client

	// Active binding per user
	registry *Registry

	// Post room membership per connection
	rooms *Rooms

	typing   *TypingAggregator
	presence presenceFanout

	// Register requests from clients
	register chan *registration

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast messages to all clients
	broadcast chan *Message

	// Send message to the bound connection of a user
	unicast chan *UnicastMessage

	// Send message to the members of a room
	roomcast chan *RoomMessage

	// Mutex for client map access
	mu sync.RWMutex

	stats *Stats

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Message handlers
	handlerMu sync.RWMutex
	handlers  map[string]MessageHandler

	rateLimitConfig RateLimitConfig
}

// Stats tracks WebSocket statistics for the introspection endpoint
type Stats struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// HubConfig wires the hub to its collaborators
type HubConfig struct {
	RateLimit RateLimitConfig
	Typing    TypingConfig

	// Participants resolves conversation members for typing notifications
	Participants ParticipantLookup

	// PresenceSinks receive online/offline transitions
	PresenceSinks []PresenceSink
}

// DefaultHubConfig returns a config without external collaborators
func DefaultHubConfig() HubConfig {
	return HubConfig{
		RateLimit: DefaultRateLimitConfig(),
		Typing:    DefaultTypingConfig(),
	}
}

// UnicastMessage is a message targeted at a specific user
type UnicastMessage struct {
	UserID  string
	Message *Message

	// result, when set, receives whether the message was queued
	result chan bool
}

// registration asks the loop to bind a client; result, when set, receives
// whether the client was accepted
type registration struct {
	client *Client
	result chan bool
}

// RoomMessage is a message for every member of a room
type RoomMessage struct {
	Room    string
	Message *Message
}

// MessageHandler processes incoming messages of a specific type
type MessageHandler func(ctx context.Context, client *Client, message *Message) error

// NewHub creates a new Hub instance
func NewHub(config HubConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	if config.RateLimit.MaxMessagesPerSecond <= 0 || config.RateLimit.BurstSize <= 0 {
		config.RateLimit = DefaultRateLimitConfig()
	}

	h := &Hub{
		clients:         make(map[string]*Client),
		registry:        NewRegistry(),
		rooms:           NewRooms(),
		register:        make(chan *registration, 256),
		unregister:      make(chan *Client, 256),
		broadcast:       make(chan *Message, 256),
		unicast:         make(chan *UnicastMessage, 256),
		roomcast:        make(chan *RoomMessage, 256),
		stats:           &Stats{},
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: config.RateLimit,
	}
	h.typing = NewTypingAggregator(config.Typing, config.Participants, h)
	for _, sink := range config.PresenceSinks {
		h.presence.add(sink)
	}

	return h
}

// RegisterHandler registers a handler for a specific message type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.handlers[msgType] = handler
	logger.Log.Debug("Registered websocket handler", zap.String("type", msgType))
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	logger.Log.Info("WebSocket hub starting")
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			logger.Log.Info("WebSocket hub shutting down")
			h.shutdown()
			return

		case reg := <-h.register:
			ok := h.registerClient(reg.client)
			if reg.result != nil {
				reg.result <- ok
			}

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case unicast := <-h.unicast:
			ok := h.sendToUser(unicast.UserID, unicast.Message)
			if unicast.result != nil {
				unicast.result <- ok
			}

		case roomcast := <-h.roomcast:
			h.sendToRoom(roomcast.Room, roomcast.Message)
		}
	}
}

// registerClient binds the client to its user and announces presence.
// A client that closed before its registration was handled is refused, so a
// late register can never bind a dead connection.
func (h *Hub) registerClient(client *Client) bool {
	if IsUnauthenticated(client.UserID) {
		logger.Log.Warn("Closing connection without identity",
			logger.WithConnectionID(client.ID),
			logger.WithUserID(client.UserID),
		)
		metrics.RecordConnection("rejected")
		client.closeSend()
		client.Close()
		return false
	}
	if client.sendIsClosed() || client.ctx.Err() != nil {
		logger.Log.Debug("Connection closed before registration",
			logger.WithUserID(client.UserID),
			logger.WithConnectionID(client.ID),
		)
		metrics.RecordConnection("closed_before_register")
		return false
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	connections := len(h.clients)
	h.mu.Unlock()

	previous, err := h.registry.Bind(client.UserID, client.ID)
	if err != nil {
		h.dropClient(client)
		return false
	}

	h.stats.TotalConnections.Add(1)
	h.stats.ActiveConnections.Add(1)
	metrics.SetConnectionGauges(connections, h.registry.Len())

	fields := []zap.Field{
		logger.WithUserID(client.UserID),
		logger.WithConnectionID(client.ID),
		zap.Int("connections", connections),
	}
	if previous != "" {
		fields = append(fields, zap.String("superseded_connection_id", previous))
	}
	logger.Log.Info("Client connected", fields...)

	h.broadcastPresence()
	h.presence.push(client.UserID, true)
	return true
}

// unregisterClient removes a closed client. Presence and typing only change
// when the client still held the binding of its user.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
	}
	connections := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	if !ok {
		return
	}

	h.stats.ActiveConnections.Add(-1)
	if left := h.rooms.LeaveAll(client.ID); len(left) > 0 {
		metrics.SetActiveRooms(h.rooms.Count())
	}

	unbound := h.registry.Unbind(client.UserID, client.ID)
	metrics.SetConnectionGauges(connections, h.registry.Len())

	logger.Log.Info("Client disconnected",
		logger.WithUserID(client.UserID),
		logger.WithConnectionID(client.ID),
		zap.Bool("was_bound", unbound),
		zap.Int("connections", connections),
	)

	if !unbound {
		return
	}

	h.typing.OnDisconnect(client.UserID)
	h.broadcastPresence()
	h.presence.push(client.UserID, false)
}

// dropClient forgets a client that never finished registering
func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	client.closeSend()
	client.Close()
}

// broadcastMessage sends a message to all connected clients
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("Error marshaling broadcast message", zap.String("type", message.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		h.deliver(client, message.Type, data)
	}
}

// sendToUser sends a message to the bound connection of userID.
// An unbound user is a silent miss.
func (h *Hub) sendToUser(userID string, message *Message) bool {
	connectionID, ok := h.registry.Resolve(userID)
	if !ok {
		metrics.RecordDeliveryDropped(metrics.DropUnbound)
		return false
	}

	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		metrics.RecordDeliveryDropped(metrics.DropUnbound)
		return false
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("Error marshaling unicast message", zap.String("type", message.Type), zap.Error(err))
		return false
	}

	return h.deliver(client, message.Type, data)
}

// sendToRoom sends a message to every connection that joined room
func (h *Hub) sendToRoom(room string, message *Message) {
	members := h.rooms.Members(room)
	if len(members) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("Error marshaling room message", logger.WithRoom(room), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, connectionID := range members {
		if client, ok := h.clients[connectionID]; ok {
			h.deliver(client, message.Type, data)
		}
	}
}

// deliver queues data on the client. A full buffer drops the message and
// disconnects the slow client.
func (h *Hub) deliver(client *Client, msgType string, data []byte) bool {
	switch err := client.enqueue(data); err {
	case nil:
		h.stats.MessagesSent.Add(1)
		metrics.RecordMessageSent(msgType)
		return true
	case errSendBufferFull:
		h.stats.ConnectionsDropped.Add(1)
		metrics.RecordDeliveryDropped(metrics.DropBufferFull)
		logger.Log.Warn("Client send buffer full, disconnecting",
			logger.WithUserID(client.UserID),
			logger.WithConnectionID(client.ID),
		)
		go h.Unregister(client)
		return false
	default:
		metrics.RecordDeliveryDropped(metrics.DropClosed)
		return false
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	}
}

// SendToUser sends a message to the bound connection of a user
func (h *Hub) SendToUser(userID string, message *Message) {
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, Message: message}:
	case <-h.ctx.Done():
	}
}

// SendToUserWait sends a message to a user and reports whether it was queued
// on a bound connection
func (h *Hub) SendToUserWait(ctx context.Context, userID string, message *Message) bool {
	result := make(chan bool, 1)
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, Message: message, result: result}:
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}

	select {
	case ok := <-result:
		return ok
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// BroadcastToRoom sends a message to every member of a room
func (h *Hub) BroadcastToRoom(room string, message *Message) {
	select {
	case h.roomcast <- &RoomMessage{Room: room, Message: message}:
	case <-h.ctx.Done():
	}
}

// Register queues a client for the hub without waiting for it to be bound
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- &registration{client: client}:
	case <-h.ctx.Done():
	}
}

// RegisterWait adds a client and returns once the loop has handled it,
// reporting whether the client was bound. Signals read after it returns see
// the client as registered.
func (h *Hub) RegisterWait(ctx context.Context, client *Client) bool {
	result := make(chan bool, 1)
	select {
	case h.register <- &registration{client: client, result: result}:
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}

	select {
	case ok := <-result:
		return ok
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// JoinRoom adds an open client to a room
func (h *Hub) JoinRoom(client *Client, room string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client.ID]; !ok {
		metrics.RecordRoomJoin("closed")
		return fmt.Errorf("connection %s is not registered", client.ID)
	}
	if err := h.rooms.Join(client.ID, room); err != nil {
		metrics.RecordRoomJoin("invalid")
		return err
	}
	metrics.RecordRoomJoin("joined")
	metrics.SetActiveRooms(h.rooms.Count())
	return nil
}

// LeaveRoom removes a client from a room
func (h *Hub) LeaveRoom(client *Client, room string) bool {
	left := h.rooms.Leave(client.ID, room)
	if left {
		metrics.SetActiveRooms(h.rooms.Count())
	}
	return left
}

// IsUserOnline checks if a user has a bound connection
func (h *Hub) IsUserOnline(userID string) bool {
	_, ok := h.registry.Resolve(userID)
	return ok
}

// GetOnlineUsers returns the sorted ids of all online users
func (h *Hub) GetOnlineUsers() []string {
	return h.registry.OnlineUsers()
}

// ConnectionCount returns the number of open connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Closed reports whether Shutdown has been called
func (h *Hub) Closed() bool {
	return h.ctx.Err() != nil
}

// Registry exposes the user to connection bindings
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Rooms exposes room membership
func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

// Typing exposes the typing aggregator
func (h *Hub) Typing() *TypingAggregator {
	return h.typing
}

// GetStats returns current WebSocket statistics
func (h *Hub) GetStats() StatsSnapshot {
	return StatsSnapshot{
		TotalConnections:   h.stats.TotalConnections.Load(),
		ActiveConnections:  h.stats.ActiveConnections.Load(),
		OnlineUsers:        int64(h.registry.Len()),
		ActiveRooms:        int64(h.rooms.Count()),
		MessagesReceived:   h.stats.MessagesReceived.Load(),
		MessagesSent:       h.stats.MessagesSent.Load(),
		Errors:             h.stats.Errors.Load(),
		ConnectionsDropped: h.stats.ConnectionsDropped.Load(),
	}
}

// Connections describes every open connection, oldest first
func (h *Hub) Connections() []ClientInfo {
	h.mu.RLock()
	infos := make([]ClientInfo, 0, len(h.clients))
	for _, client := range h.clients {
		infos = append(infos, client.GetInfo())
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ConnectionID < infos[j].ConnectionID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// StatsSnapshot is a point-in-time snapshot of hub statistics
type StatsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	OnlineUsers        int64 `json:"online_users"`
	ActiveRooms        int64 `json:"active_rooms"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for StatsSnapshot
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d users=%d rooms=%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		s.ActiveConnections, s.TotalConnections, s.OnlineUsers, s.ActiveRooms,
		s.MessagesReceived, s.MessagesSent,
		s.Errors, s.ConnectionsDropped,
	)
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating WebSocket hub shutdown")

	// Cancel the hub's context to stop the main loop
	h.cancel()

	select {
	case <-h.done:
		logger.Log.Info("WebSocket hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// shutdown tells every client the server is going away and closes them
func (h *Hub) shutdown() {
	shutdownMsg := NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"})
	data, _ := json.Marshal(shutdownMsg)

	h.mu.Lock()
	closed := len(h.clients)
	for _, client := range h.clients {
		_ = client.enqueue(data)
		client.closeSend()
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	h.typing.Stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), presenceSinkTimeout)
	defer cancel()
	drained := make(chan struct{})
	go func() {
		h.presence.wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-waitCtx.Done():
	}

	metrics.SetConnectionGauges(0, 0)
	logger.Log.Info("Closed connections during shutdown", zap.Int("connections", closed))
}

// SetRateLimitConfig updates the rate limiting configuration for new clients
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.rateLimitConfig
}
