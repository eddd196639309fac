package eventbus

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/middleware"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"github.com/Bhogyaan/threads/backend/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sourceHTTP = "http"

	// IngestPath is where the realtime server accepts envelopes
	IngestPath = "/internal/events"
)

// HTTPIngest accepts envelopes over HTTP from processes without a shared
// bus. Route it behind middleware.RequireInternalToken.
type HTTPIngest struct {
	notifier notify.Notifier
}

// NewHTTPIngest creates the ingest handler
func NewHTTPIngest(notifier notify.Notifier) *HTTPIngest {
	return &HTTPIngest{notifier: notifier}
}

// Handle dispatches one envelope and answers 202 once it is relayed
func (h *HTTPIngest) Handle(c *gin.Context) {
	var env Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		metrics.RecordBridgeEvent(sourceHTTP, err)
		util.RespondWithAPIError(c, errors.BadRequest("invalid event envelope").WithDetails(err.Error()))
		return
	}
	if env.ID == "" {
		env.ID = uuid.New().String()
	}

	// otelgin has already extracted the caller's trace from the headers
	_, span := telemetry.GetRealtimeEvents().TraceBridgeEvent(c.Request.Context(), sourceHTTP, env.Type)
	defer span.End()

	err := Dispatch(h.notifier, &env)
	metrics.RecordBridgeEvent(sourceHTTP, err)
	if err != nil {
		telemetry.RecordError(span, err)
		if stderrors.Is(err, ErrUnknownEvent) {
			util.RespondWithAPIError(c, errors.UnknownEvent(env.Type))
			return
		}
		util.RespondValidationError(c, "data", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     env.ID,
		"type":   env.Type,
		"status": "accepted",
	})
}

// HTTPTransport posts envelopes to a realtime server's ingest endpoint
type HTTPTransport struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPTransport targets baseURL (e.g. http://realtime:8787) with the
// shared internal token
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		client: telemetry.NewInstrumentedHTTPClient(publishTimeout),
		url:    strings.TrimRight(baseURL, "/") + IngestPath,
		token:  token,
	}
}

// NewHTTPPublisher is a Notifier posting to a realtime server
func NewHTTPPublisher(baseURL, token string) *Publisher {
	return NewPublisher(NewHTTPTransport(baseURL, token))
}

func (t *HTTPTransport) Name() string { return sourceHTTP }

func (t *HTTPTransport) Publish(ctx context.Context, _ string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.InternalTokenHeader, t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", t.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", t.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
