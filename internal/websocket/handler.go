package websocket

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/auth"
	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/repository"
	"github.com/Bhogyaan/threads/backend/internal/util"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConversationStore is the slice of the data store the message signals use
type ConversationStore interface {
	ParticipantLookup
	DeliveryStore
	MarkMessagesSeen(ctx context.Context, conversationID, viewerID string) ([]string, error)
}

// PostStore loads the authoritative state of a post for resync
type PostStore interface {
	GetPostState(ctx context.Context, postID string) (*repository.PostState, error)
}

// HandlerConfig wires the HTTP handler to auth and the data store
type HandlerConfig struct {
	Verifier      auth.TokenVerifier
	Conversations ConversationStore
	Posts         PostStore

	// AllowedOrigins are origin patterns accepted on upgrade; "*" disables the check
	AllowedOrigins []string
}

// Handler handles WebSocket HTTP upgrade requests and the realtime
// introspection endpoints
type Handler struct {
	hub           *Hub
	relay         *Relay
	admission     *Admission
	conversations ConversationStore
	posts         PostStore
	acceptOptions *websocket.AcceptOptions
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, relay *Relay, config HandlerConfig) *Handler {
	return &Handler{
		hub:           hub,
		relay:         relay,
		admission:     NewAdmission(config.Verifier),
		conversations: config.Conversations,
		posts:         config.Posts,
		acceptOptions: acceptOptions(config.AllowedOrigins),
	}
}

func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	for _, origin := range origins {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = origins
	return opts
}

// HandleWebSocket handles WebSocket upgrade requests
// Authentication is done via query params: ?token=...&userId=...
// The token may also come from the Authorization header: Bearer <token>
func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.hub.Closed() {
		util.RespondWithAPIError(c, errors.ServiceUnavailable("realtime hub"))
		return
	}

	userID, err := h.admission.Admit(c.Request)
	if err != nil {
		metrics.RecordConnection("rejected")
		util.RespondError(c, err)
		return
	}

	// Upgrade the HTTP connection to WebSocket
	conn, err := websocket.Accept(c.Writer, c.Request, h.acceptOptions)
	if err != nil {
		metrics.RecordConnection("upgrade_failed")
		logger.Log.Warn("WebSocket upgrade failed", logger.WithUserID(userID), zap.Error(err))
		return
	}
	metrics.RecordConnection("accepted")

	client := NewClient(h.hub, conn, userID)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	// Welcome goes out before anything the hub queues
	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Welcome to Threads!",
		Data: map[string]interface{}{
			"user_id":       userID,
			"connection_id": client.ID,
			"server_time":   time.Now().UTC().UnixMilli(),
		},
	}))

	// Signals are read only once the hub has bound the client, so a join sent
	// as the first frame finds it registered
	if !h.hub.RegisterWait(c.Request.Context(), client) {
		h.hub.Unregister(client)
		client.Close()
		return
	}

	// Start client read/write pumps
	go client.WritePump()
	client.ReadPump() // This blocks until client disconnects
}

// RegisterDefaultHandlers registers the client signal handlers
func (h *Handler) RegisterDefaultHandlers() {
	h.hub.RegisterHandler(MessageTypeJoinPostRoom, h.handleJoinPostRoom)
	h.hub.RegisterHandler(MessageTypeLeavePostRoom, h.handleLeavePostRoom)
	h.hub.RegisterHandler(MessageTypeTyping, h.handleTyping)
	h.hub.RegisterHandler(MessageTypeStopTyping, h.handleStopTyping)
	h.hub.RegisterHandler(MessageTypeMarkMessagesAsSeen, h.handleMarkMessagesAsSeen)
	h.hub.RegisterHandler(MessageTypeResyncPost, h.handleResyncPost)

	logger.Log.Info("Registered default WebSocket message handlers")
}

func (h *Handler) handleJoinPostRoom(_ context.Context, client *Client, msg *Message) error {
	var payload RoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return errors.BadRequest("invalid joinPostRoom payload")
	}

	if err := h.hub.JoinRoom(client, payload.Room); err != nil {
		if stderrors.Is(err, ErrInvalidRoom) {
			return errors.ValidationError("room", err.Error())
		}
		// connection closed while the signal was in flight
		logger.Log.Debug("Join ignored", logger.WithConnectionID(client.ID), zap.Error(err))
		return nil
	}

	logger.Log.Debug("Joined room",
		logger.WithUserID(client.UserID),
		logger.WithConnectionID(client.ID),
		logger.WithRoom(payload.Room))
	return nil
}

func (h *Handler) handleLeavePostRoom(_ context.Context, client *Client, msg *Message) error {
	var payload RoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return errors.BadRequest("invalid leavePostRoom payload")
	}
	if err := ValidateRoom(payload.Room); err != nil {
		return errors.ValidationError("room", err.Error())
	}

	h.hub.LeaveRoom(client, payload.Room)
	return nil
}

func (h *Handler) handleTyping(_ context.Context, client *Client, msg *Message) error {
	conversationID, err := conversationFrom(msg)
	if err != nil {
		return err
	}
	h.hub.Typing().OnTyping(conversationID, client.UserID)
	return nil
}

func (h *Handler) handleStopTyping(_ context.Context, client *Client, msg *Message) error {
	conversationID, err := conversationFrom(msg)
	if err != nil {
		return err
	}
	h.hub.Typing().OnStopTyping(conversationID, client.UserID)
	return nil
}

func conversationFrom(msg *Message) (string, error) {
	var payload ConversationPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return "", errors.BadRequest(fmt.Sprintf("invalid %s payload", msg.Type))
	}
	if payload.ConversationID == "" {
		return "", errors.ValidationError("conversationId", "conversationId is required")
	}
	return payload.ConversationID, nil
}

func (h *Handler) handleMarkMessagesAsSeen(ctx context.Context, client *Client, msg *Message) error {
	var payload MarkSeenPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return errors.BadRequest("invalid markMessagesAsSeen payload")
	}
	if payload.ConversationID == "" {
		return errors.ValidationError("conversationId", "conversationId is required")
	}
	if h.conversations == nil {
		return errors.ServiceUnavailable("conversation store")
	}

	seen, err := h.conversations.MarkMessagesSeen(ctx, payload.ConversationID, client.UserID)
	if stderrors.Is(err, repository.ErrNotParticipant) {
		return errors.Forbidden("not a participant of this conversation")
	}
	if err != nil {
		return fmt.Errorf("mark messages seen in %s: %w", payload.ConversationID, err)
	}

	h.relay.MessagesSeen(notify.SeenEvent{
		ConversationID: payload.ConversationID,
		SeenBy:         client.UserID,
		MessageIDs:     seen,
		NotifyUserID:   payload.UserID,
	})
	return nil
}

func (h *Handler) handleResyncPost(ctx context.Context, client *Client, msg *Message) error {
	var payload ResyncPayload
	if err := msg.ParsePayload(&payload); err != nil {
		return errors.BadRequest("invalid resyncPost payload")
	}
	if payload.PostID == "" {
		return errors.ValidationError("postId", "postId is required")
	}
	if h.posts == nil {
		return errors.ServiceUnavailable("post store")
	}

	state, err := h.posts.GetPostState(ctx, payload.PostID)
	if stderrors.Is(err, repository.ErrPostNotFound) {
		return errors.NotFound("post")
	}
	if err != nil {
		return fmt.Errorf("load post %s: %w", payload.PostID, err)
	}

	_ = client.Send(NewReply(msg, MessageTypePostState, state))
	return nil
}

// HandleOnlineUsers lists the users with a bound connection
func (h *Handler) HandleOnlineUsers(c *gin.Context) {
	users := h.hub.GetOnlineUsers()
	c.JSON(http.StatusOK, gin.H{
		"user_ids":  users,
		"count":     len(users),
		"timestamp": time.Now().UTC(),
	})
}

// HandleOnlineStatus checks if specific users are online
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// HandleMetrics returns WebSocket statistics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetStats(),
		"online_users": h.hub.GetOnlineUsers(),
		"connections":  h.hub.Connections(),
		"timestamp":    time.Now().UTC(),
	})
}

// Shutdown waits for relay work in flight, then shuts the hub down
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.relay.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("relay drain: %w", ctx.Err())
	}
	return h.hub.Shutdown(ctx)
}

// GetHub returns the hub for external access
func (h *Handler) GetHub() *Hub {
	return h.hub
}

// GetRelay returns the relay CRUD handlers and event bridges publish to
func (h *Handler) GetRelay() *Relay {
	return h.relay
}
