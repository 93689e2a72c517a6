package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/gochat-relay/internal/config"
	"github.com/npezzotti/gochat-relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// dialAndJoin opens a WebSocket, joins room as username and drains the
// join responses.
func dialAndJoin(t *testing.T, srv *httptest.Server, username, room string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err, "failed to dial")
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "connected", ev["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join", "username": username, "room": room}))
	for _, want := range []string{"history", "users"} {
		require.NoError(t, conn.ReadJSON(&ev))
		require.Equal(t, want, ev["type"])
	}

	return conn
}

func getJson(t *testing.T, url string, v any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestApp(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestListRooms(t *testing.T) {
	_, _, srv := newTestApp(t, nil)

	var rooms []types.RoomInfo
	resp := getJson(t, srv.URL+"/api/rooms", &rooms)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, rooms)

	alice := dialAndJoin(t, srv, "alice", "lobby")
	dialAndJoin(t, srv, "bob", "lobby")
	dialAndJoin(t, srv, "carol", "annex")

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "message", "text": "hello"}))
	require.Eventually(t, func() bool {
		getJson(t, srv.URL+"/api/rooms", &rooms)
		return len(rooms) == 2 && rooms[1].Messages == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []types.RoomInfo{
		{Name: "annex", Members: 1, Messages: 0},
		{Name: "lobby", Members: 2, Messages: 1},
	}, rooms)
}

func TestRoomHistory(t *testing.T) {
	_, _, srv := newTestApp(t, nil)

	t.Run("unknown room", func(t *testing.T) {
		var history HistoryResponse
		resp := getJson(t, srv.URL+"/api/rooms/nowhere/history", &history)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "nowhere", history.Room)
		assert.NotNil(t, history.History, "expected an empty array, not null")
		assert.Empty(t, history.History)
	})

	t.Run("after messages", func(t *testing.T) {
		alice := dialAndJoin(t, srv, "alice", "main")
		for _, text := range []string{"one", "two"} {
			require.NoError(t, alice.WriteJSON(map[string]any{"type": "message", "text": text}))
		}

		var history HistoryResponse
		require.Eventually(t, func() bool {
			getJson(t, srv.URL+"/api/rooms/main/history", &history)
			return len(history.History) == 2
		}, 2*time.Second, 10*time.Millisecond)

		assert.Equal(t, "one", history.History[0].Text)
		assert.Equal(t, "two", history.History[1].Text)
		assert.Equal(t, "alice", history.History[0].Username)
	})
}

func TestRoomUsers(t *testing.T) {
	_, _, srv := newTestApp(t, nil)

	dialAndJoin(t, srv, "alice", "main")
	dialAndJoin(t, srv, "bob", "main")

	var users UsersResponse
	resp := getJson(t, srv.URL+"/api/rooms/main/users", &users)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, users.Users, 2)
	assert.Equal(t, "alice", users.Users[0].Username)
	assert.Equal(t, "bob", users.Users[1].Username)

	getJson(t, srv.URL+"/api/rooms/empty/users", &users)
	assert.NotNil(t, users.Users)
	assert.Empty(t, users.Users)
}

func TestMethodNotAllowed(t *testing.T) {
	_, _, srv := newTestApp(t, nil)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDebugVars(t *testing.T) {
	_, _, srv := newTestApp(t, nil)

	dialAndJoin(t, srv, "alice", "main")

	require.Eventually(t, func() bool {
		var vars map[string]any
		getJson(t, srv.URL+"/debug/vars", &vars)
		return vars["NumActiveClients"] == float64(1) && vars["NumRooms"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCORS(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"http://allowed.example"}
	_, _, srv := newTestApp(t, cfg)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://allowed.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCheckOrigin(t *testing.T) {
	tcases := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{name: "no origin header", allowed: []string{"http://a.example"}, origin: "", want: true},
		{name: "listed origin", allowed: []string{"http://a.example"}, origin: "http://a.example", want: true},
		{name: "unlisted origin", allowed: []string{"http://a.example"}, origin: "http://b.example", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://b.example", want: true},
		{name: "same host without config", origin: "http://chat.example:8000", host: "chat.example:8000", want: true},
		{name: "cross host without config", origin: "http://evil.example", host: "chat.example:8000", want: false},
		{name: "malformed origin", origin: "://bad", host: "chat.example", want: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := &GoChatApp{allowedOrigins: tc.allowed}
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.host != "" {
				req.Host = tc.host
			}
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			assert.Equal(t, tc.want, app.checkOrigin(req))
		})
	}
}

func TestServeWs_RejectsOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"http://allowed.example"}
	_, cs, srv := newTestApp(t, cfg)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)

	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	if assert.NotNil(t, resp) {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Equal(t, 0, cs.NumClients())
}

func TestServeWs_AfterShutdown(t *testing.T) {
	_, cs, srv := newTestApp(t, nil)
	require.NoError(t, cs.Shutdown(context.Background()))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err, "expected the upgrade itself to succeed")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "expected the connection to be closed")
	assert.Equal(t, 0, cs.NumClients())
}
