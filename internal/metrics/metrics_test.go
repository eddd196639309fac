package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(), Initialize())
}

func TestRecordRelayEvent(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.RelayEventsTotal.WithLabelValues("newComment", "room"))

	RecordRelayEvent("newComment", "room")
	RecordRelayEvent("newComment", "room")

	after := testutil.ToFloat64(m.RelayEventsTotal.WithLabelValues("newComment", "room"))
	assert.Equal(t, before+2, after)
}

func TestRecordBridgeEventStatus(t *testing.T) {
	m := Get()
	okBefore := testutil.ToFloat64(m.BridgeEventsTotal.WithLabelValues("kafka", "success"))
	errBefore := testutil.ToFloat64(m.BridgeEventsTotal.WithLabelValues("kafka", "error"))

	RecordBridgeEvent("kafka", nil)
	RecordBridgeEvent("kafka", errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.BridgeEventsTotal.WithLabelValues("kafka", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.BridgeEventsTotal.WithLabelValues("kafka", "error")))
}

func TestSetConnectionGauges(t *testing.T) {
	SetConnectionGauges(3, 2)

	m := Get()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WSActiveConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WSOnlineUsers))
}

func TestRecordDatabaseQuery(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.DatabaseQueriesTotal.WithLabelValues("update", "messages", "error"))

	RecordDatabaseQuery("update", "messages", 5*time.Millisecond, errors.New("locked"))

	assert.Equal(t, before+1, testutil.ToFloat64(m.DatabaseQueriesTotal.WithLabelValues("update", "messages", "error")))
}
