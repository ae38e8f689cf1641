package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Event string          `json:"event"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Retry int             `json:"retry"`
}

func dialGame(t *testing.T, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/" + name + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	var idCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "id" {
			idCookie = c
		}
	}
	require.NotNil(t, idCookie, "upgrade response must carry the id cookie")
	// Scoped to the session path so posts and the SSE stream send it too.
	assert.Equal(t, "/games/"+name, idCookie.Path)
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wireFrame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func rosterOf(t *testing.T, f wireFrame) []string {
	t.Helper()
	require.Equal(t, "player_update", f.Event)
	var entries []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestGameSocket(t *testing.T) {
	ts, registry := newTestServer(t)
	session, err := registry.Create(context.Background(), "kaas")
	require.NoError(t, err)

	anna := dialGame(t, ts, "kaas")
	welcome := readFrame(t, anna)
	assert.Equal(t, "message", welcome.Event)
	assert.JSONEq(t, `"Welcome to kaas!"`, string(welcome.Data))
	assert.Equal(t, 5, welcome.Retry)
	assert.Empty(t, rosterOf(t, readFrame(t, anna)))

	require.NoError(t, anna.WriteJSON(map[string]any{
		"event": "join",
		"data":  map[string]string{"type": "player", "name": "Anna"},
	}))

	// Errors come back on the same socket.
	require.NoError(t, anna.WriteJSON(map[string]any{"event": "dance", "data": map[string]string{}}))
	errFrame := readFrame(t, anna)
	assert.Equal(t, "error", errFrame.Type)

	bram := dialGame(t, ts, "kaas")
	readFrame(t, bram)
	assert.Equal(t, []string{"Anna"}, rosterOf(t, readFrame(t, bram)))

	require.NoError(t, bram.WriteJSON(map[string]any{
		"event": "join",
		"data":  map[string]string{"type": "player", "name": "Bram"},
	}))
	assert.Equal(t, []string{"Anna", "Bram"}, rosterOf(t, readFrame(t, anna)))
	assert.Equal(t, []string{"Anna", "Bram"}, rosterOf(t, readFrame(t, bram)))

	require.NoError(t, bram.Close())
	require.Eventually(t, func() bool {
		return session.PlayerCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Anna"}, rosterOf(t, readFrame(t, anna)))
}

func TestGameSocketUnknownGame(t *testing.T) {
	ts, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGameSocketCookieWorksForPosts(t *testing.T) {
	ts, registry := newTestServer(t)
	session, err := registry.Create(context.Background(), "kaas")
	require.NoError(t, err)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	dialer := websocket.Dialer{Jar: jar}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/kaas/ws"
	ws, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	readFrame(t, ws)
	readFrame(t, ws)

	client := &http.Client{Jar: jar}
	status, _ := doJSON(t, client, http.MethodPost, ts.URL+"/games/kaas",
		`{"event":"join","data":{"type":"player","name":"Anna"}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, session.PlayerCount())
}
