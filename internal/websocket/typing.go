package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultTypingDebounce collapses bursts of keystroke signals
	DefaultTypingDebounce = 500 * time.Millisecond
	// DefaultTypingIdleTimeout expires a typing user who went quiet
	DefaultTypingIdleTimeout = 5 * time.Second

	participantLookupTimeout = 5 * time.Second
)

// ParticipantLookup resolves the members of a conversation
type ParticipantLookup interface {
	Participants(ctx context.Context, conversationID string) ([]string, error)
}

// userSender delivers an event to the bound connection of a user
type userSender interface {
	SendToUser(userID string, message *Message)
}

type typingState int

const (
	typingPending typingState = iota + 1
	typingActive
)

type typingKey struct {
	conversationID string
	userID         string
}

type typingEntry struct {
	state typingState
	timer *time.Timer
	// gen identifies the timer that may act on this entry; stale timers see a
	// different value and return without touching state
	gen uint64
}

// TypingConfig holds the aggregator timings
type TypingConfig struct {
	Debounce    time.Duration
	IdleTimeout time.Duration
}

// DefaultTypingConfig returns the production timings
func DefaultTypingConfig() TypingConfig {
	return TypingConfig{
		Debounce:    DefaultTypingDebounce,
		IdleTimeout: DefaultTypingIdleTimeout,
	}
}

// TypingAggregator turns raw typing signals into at most one typing and one
// stopTyping notification per burst. Each (conversation, user) pair moves
// NotTyping -> Pending -> Typing -> NotTyping.
type TypingAggregator struct {
	mu             sync.Mutex
	entries        map[typingKey]*typingEntry
	byConversation map[string]map[string]struct{}
	gen            uint64
	stopped        bool

	config       TypingConfig
	participants ParticipantLookup
	sender       userSender
	wg           sync.WaitGroup
}

// NewTypingAggregator creates an aggregator that notifies through sender
func NewTypingAggregator(config TypingConfig, participants ParticipantLookup, sender userSender) *TypingAggregator {
	if config.Debounce <= 0 {
		config.Debounce = DefaultTypingDebounce
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultTypingIdleTimeout
	}

	return &TypingAggregator{
		entries:        make(map[typingKey]*typingEntry),
		byConversation: make(map[string]map[string]struct{}),
		config:         config,
		participants:   participants,
		sender:         sender,
	}
}

// OnTyping handles a typing signal. A pending user has the debounce restarted;
// a typing user only has the idle timer restarted.
func (a *TypingAggregator) OnTyping(conversationID, userID string) {
	key := typingKey{conversationID: conversationID, userID: userID}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	entry, ok := a.entries[key]
	if ok && entry.state == typingActive {
		entry.timer.Stop()
		entry.gen = a.nextGen()
		entry.timer = a.schedule(a.config.IdleTimeout, key, entry.gen, a.expire)
		return
	}

	if ok {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{state: typingPending}
		a.entries[key] = entry
	}
	entry.gen = a.nextGen()
	entry.timer = a.schedule(a.config.Debounce, key, entry.gen, a.fire)
}

// OnStopTyping removes the user at once and always tells peers, so a burst
// cancelled inside the debounce window nets zero typing events
func (a *TypingAggregator) OnStopTyping(conversationID, userID string) {
	key := typingKey{conversationID: conversationID, userID: userID}

	a.mu.Lock()
	if entry, ok := a.entries[key]; ok {
		entry.timer.Stop()
		a.removeLocked(key)
	}
	a.mu.Unlock()

	a.notifyPeers(MessageTypeStopTyping, conversationID, userID)
}

// OnDisconnect clears every entry of the user. Peers of conversations where
// the user was typing get one stopTyping each; the participant lookups run in
// the background so the disconnect path never waits on the store.
func (a *TypingAggregator) OnDisconnect(userID string) {
	var typingIn []string

	a.mu.Lock()
	for key, entry := range a.entries {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		if entry.state == typingActive {
			typingIn = append(typingIn, key.conversationID)
		}
		a.removeLocked(key)
	}
	if len(typingIn) > 0 {
		a.wg.Add(1)
	}
	a.mu.Unlock()

	if len(typingIn) == 0 {
		return
	}

	sort.Strings(typingIn)
	go func() {
		defer a.wg.Done()
		for _, conversationID := range typingIn {
			a.notifyPeers(MessageTypeStopTyping, conversationID, userID)
		}
	}()
}

// TypingUsers returns the users currently marked typing in a conversation
func (a *TypingAggregator) TypingUsers(conversationID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	users := make([]string, 0, len(a.byConversation[conversationID]))
	for userID := range a.byConversation[conversationID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Stop cancels every timer and waits for background notifications.
// Signals received afterwards are ignored.
func (a *TypingAggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	for key, entry := range a.entries {
		entry.timer.Stop()
		a.removeLocked(key)
	}
	a.mu.Unlock()

	a.wg.Wait()
}

// fire runs when the debounce window elapses without a stop signal. The
// user joins the typing set only once membership of the conversation is
// confirmed; otherwise the entry is dropped.
func (a *TypingAggregator) fire(key typingKey, gen uint64) {
	if !a.isCurrent(key, gen, typingPending) {
		return
	}

	participants, ok := a.peersOf(MessageTypeTyping, key.conversationID, key.userID)

	a.mu.Lock()
	entry, exists := a.entries[key]
	if !exists || entry.gen != gen || entry.state != typingPending {
		a.mu.Unlock()
		return
	}
	if !ok {
		a.removeLocked(key)
		a.mu.Unlock()
		return
	}

	entry.state = typingActive
	if a.byConversation[key.conversationID] == nil {
		a.byConversation[key.conversationID] = make(map[string]struct{})
	}
	a.byConversation[key.conversationID][key.userID] = struct{}{}
	entry.gen = a.nextGen()
	entry.timer = a.schedule(a.config.IdleTimeout, key, entry.gen, a.expire)
	a.mu.Unlock()

	a.send(MessageTypeTyping, key.conversationID, key.userID, participants)
}

func (a *TypingAggregator) isCurrent(key typingKey, gen uint64, state typingState) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[key]
	return ok && entry.gen == gen && entry.state == state
}

// expire runs when a typing user sent nothing for the idle timeout
func (a *TypingAggregator) expire(key typingKey, gen uint64) {
	a.mu.Lock()
	entry, ok := a.entries[key]
	if !ok || entry.gen != gen || entry.state != typingActive {
		a.mu.Unlock()
		return
	}
	a.removeLocked(key)
	a.mu.Unlock()

	logger.Log.Debug("Typing expired",
		logger.WithConversationID(key.conversationID),
		logger.WithUserID(key.userID),
	)
	a.notifyPeers(MessageTypeStopTyping, key.conversationID, key.userID)
}

func (a *TypingAggregator) schedule(d time.Duration, key typingKey, gen uint64, fn func(typingKey, uint64)) *time.Timer {
	return time.AfterFunc(d, func() { fn(key, gen) })
}

func (a *TypingAggregator) nextGen() uint64 {
	a.gen++
	return a.gen
}

func (a *TypingAggregator) removeLocked(key typingKey) {
	delete(a.entries, key)
	if users, ok := a.byConversation[key.conversationID]; ok {
		delete(users, key.userID)
		if len(users) == 0 {
			delete(a.byConversation, key.conversationID)
		}
	}
}

// notifyPeers sends event to every participant except userID
func (a *TypingAggregator) notifyPeers(event, conversationID, userID string) {
	if participants, ok := a.peersOf(event, conversationID, userID); ok {
		a.send(event, conversationID, userID, participants)
	}
}

// peersOf returns the members of a conversation and whether userID is one
// of them. Without a lookup configured every user is accepted and there is
// nobody to notify. Lookup failures are logged and count as not a member.
func (a *TypingAggregator) peersOf(event, conversationID, userID string) ([]string, bool) {
	if a.participants == nil {
		return nil, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), participantLookupTimeout)
	defer cancel()

	participants, err := a.participants.Participants(ctx, conversationID)
	if err != nil {
		logger.Log.Warn("Failed to resolve conversation participants",
			logger.WithConversationID(conversationID),
			logger.WithUserID(userID),
			logger.WithEventType(event),
			zap.Error(err),
		)
		return nil, false
	}

	if !contains(participants, userID) {
		logger.Log.Warn("Typing signal from non-participant ignored",
			logger.WithConversationID(conversationID),
			logger.WithUserID(userID),
		)
		return nil, false
	}
	return participants, true
}

func (a *TypingAggregator) send(event, conversationID, userID string, participants []string) {
	if a.sender == nil || len(participants) == 0 {
		return
	}

	payload := TypingPayload{ConversationID: conversationID, UserID: userID}
	for _, participant := range participants {
		if participant == userID {
			continue
		}
		a.sender.SendToUser(participant, NewMessage(event, payload))
	}
	metrics.RecordTypingNotification(event)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
