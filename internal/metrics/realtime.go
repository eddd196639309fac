package metrics

import "time"

// Drop reasons for WSDeliveriesDropped
const (
	DropUnbound    = "unbound"
	DropBufferFull = "buffer_full"
	DropClosed     = "closed"
)

// RecordConnection counts an admission attempt ("accepted", "rejected")
func RecordConnection(result string) {
	Get().WSConnectionsTotal.WithLabelValues(result).Inc()
}

// SetConnectionGauges publishes the open connection and online user counts
func SetConnectionGauges(connections, onlineUsers int) {
	m := Get()
	m.WSActiveConnections.Set(float64(connections))
	m.WSOnlineUsers.Set(float64(onlineUsers))
}

// RecordMessageReceived counts a client signal
func RecordMessageReceived(msgType string) {
	Get().WSMessagesReceived.WithLabelValues(msgType).Inc()
}

// RecordMessageSent counts a server event queued on a connection
func RecordMessageSent(msgType string) {
	Get().WSMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordDeliveryDropped counts an event that reached no connection
func RecordDeliveryDropped(reason string) {
	Get().WSDeliveriesDropped.WithLabelValues(reason).Inc()
}

// RecordPresenceBroadcast counts one getOnlineUsers fan-out
func RecordPresenceBroadcast() {
	Get().PresenceBroadcastsTotal.Inc()
}

// RecordTypingNotification counts a typing or stopTyping fan-out
func RecordTypingNotification(event string) {
	Get().TypingNotificationsTotal.WithLabelValues(event).Inc()
}

// RecordRoomJoin counts a join request ("joined", "invalid")
func RecordRoomJoin(result string) {
	Get().RoomJoinsTotal.WithLabelValues(result).Inc()
}

// SetActiveRooms publishes the number of non-empty rooms
func SetActiveRooms(n int) {
	Get().ActiveRooms.Set(float64(n))
}

// RecordRelayEvent counts a relayed domain event ("direct", "room", "global")
func RecordRelayEvent(event, scope string) {
	Get().RelayEventsTotal.WithLabelValues(event, scope).Inc()
}

// RecordBridgeEvent counts an event received from http, redis, kafka or postgres
func RecordBridgeEvent(source string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Get().BridgeEventsTotal.WithLabelValues(source, status).Inc()
}

// RecordRateLimitExceeded records rate limiting events
func RecordRateLimitExceeded(endpoint, method string) {
	Get().RateLimitExceededTotal.WithLabelValues(endpoint, method).Inc()
}

// RecordDatabaseQuery records database operations
func RecordDatabaseQuery(queryType, table string, duration time.Duration, err error) {
	m := Get()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
	m.DatabaseQueriesTotal.WithLabelValues(queryType, table, status).Inc()
}

// RecordRedisOperation records Redis operations
func RecordRedisOperation(operation, keyPattern string, duration time.Duration, err error) {
	m := Get()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RedisOperationDuration.WithLabelValues(operation, keyPattern).Observe(duration.Seconds())
	m.RedisOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordError records errors
func RecordError(errorType, endpoint string) {
	Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
