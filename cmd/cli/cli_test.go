package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8787", "ws://localhost:8787/ws?token=tok&userId=u1"},
		{"https://rt.example.com/", "wss://rt.example.com/ws?token=tok&userId=u1"},
		{"https://rt.example.com/realtime", "wss://rt.example.com/realtime/ws?token=tok&userId=u1"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := websocketURL(tt.base, "tok", "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"missing token"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	apiURL = srv.URL
	initClient()

	err := do(httpClient.R(), "GET", "/api", nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	err = do(httpClient.R(), "GET", "/plain", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unknown_error", apiErr.Code)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestOnlineCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"statuses":{"u1":true,"u2":false}}`))
			return
		}
		_, _ = w.Write([]byte(`{"user_ids":["u2","u1"],"count":2}`))
	}))
	defer srv.Close()

	apiURL = srv.URL
	authToken = "tok"
	output = "text"
	initClient()
	t.Cleanup(func() { authToken = "" })

	require.NoError(t, listOnline())
	require.NoError(t, checkOnline([]string{"u1", "u2"}))
}

func TestReadData(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"postId":"p1"}`), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte(`{"postId":`), 0o600))

	data, err := readData(good)
	require.NoError(t, err)
	assert.JSONEq(t, `{"postId":"p1"}`, string(data))

	_, err = readData(bad)
	assert.Error(t, err)

	_, err = readData(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPublishRejectsInvalidEventLocally(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(file, []byte(`{}`), 0o600))

	err := publishEvent(t.Context(), "postBanned", file, "http", "", "")
	assert.Error(t, err)

	err = publishEvent(t.Context(), "storyViewed", file, "http", "", "")
	assert.Error(t, err)
}

func TestMintToken(t *testing.T) {
	output = "text"
	assert.NoError(t, mintToken("u1", "secret", 0))
	t.Setenv("JWT_SECRET", "")
	assert.Error(t, mintToken("u1", "", 0))
}
