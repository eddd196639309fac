package eventbus

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Bhogyaan/threads/backend/internal/middleware"
	"github.com/Bhogyaan/threads/backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testToken = "internal-secret"

func ingestRouter(n *mockNotifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST(IngestPath, middleware.RequireInternalToken(testToken), NewHTTPIngest(n).Handle)
	return router
}

func postEnvelope(router http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, IngestPath, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.InternalTokenHeader, token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHTTPIngestAccepts(t *testing.T) {
	n := &mockNotifier{}
	n.On("PostBanned", "p1").Return().Once()
	router := ingestRouter(n)

	w := postEnvelope(router, testToken, `{"type":"postBanned","data":{"postId":"p1"}}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, EventPostBanned, resp["type"])
	assert.NotEmpty(t, resp["id"])
	n.AssertExpectations(t)
}

func TestHTTPIngestRejects(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{"missing token", "", `{"type":"postBanned","data":{"postId":"p1"}}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong token", "guess", `{"type":"postBanned","data":{"postId":"p1"}}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"malformed json", testToken, `{"type":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing type", testToken, `{"data":{}}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown type", testToken, `{"type":"storyViewed","data":{}}`, http.StatusBadRequest, "UNKNOWN_EVENT"},
		{"invalid data", testToken, `{"type":"newComment","data":{"comment":{}}}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &mockNotifier{}
			w := postEnvelope(ingestRouter(n), tt.token, tt.body)

			assert.Equal(t, tt.status, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp["code"])
			assert.Empty(t, n.Calls)
		})
	}
}

func TestHTTPIngestDisabledWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST(IngestPath, middleware.RequireInternalToken(""), NewHTTPIngest(&mockNotifier{}).Handle)

	w := postEnvelope(router, "anything", `{"type":"postBanned","data":{"postId":"p1"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHTTPPublisherRoundTrip(t *testing.T) {
	n := &mockNotifier{}
	n.On("NewComment", "p1", mock.MatchedBy(func(c models.Comment) bool { return c.ID == "c1" })).Return().Once()

	srv := httptest.NewServer(ingestRouter(n))
	defer srv.Close()

	NewHTTPPublisher(srv.URL+"/", testToken).NewComment("p1", models.Comment{ID: "c1", PostID: "p1"})
	n.AssertExpectations(t)
}

func TestHTTPTransportReportsRejection(t *testing.T) {
	srv := httptest.NewServer(ingestRouter(&mockNotifier{}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, "wrong")
	err := transport.Publish(t.Context(), "", []byte(`{"type":"postBanned","data":{"postId":"p1"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
