package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsync/server/internal/bus"
	"github.com/tabsync/server/internal/controller"
	"github.com/tabsync/server/internal/repository/connection/inmemory"
	sessionredis "github.com/tabsync/server/internal/repository/session/redis"
	"github.com/tabsync/server/internal/service/session"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionRepo := sessionredis.NewRepo(rc, time.Hour)
	connectionRepo := inmemory.NewRepo()
	logger := slog.Default()
	eventBus := bus.New(sessionRepo, logger, bus.DefaultQueueSize)
	sessionService := session.NewService(
		sessionRepo,
		connectionRepo,
		eventBus,
		session.NopMetricsSource{},
		clockwork.NewRealClock(),
		logger,
		session.Config{},
	)
	c := controller.NewController(sessionService, logger)

	server := httptest.NewServer(c.GetMux())
	t.Cleanup(server.Close)

	return server
}

func postJSON(t *testing.T, url string, body any) map[string]json.RawMessage {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))

	return envelope
}

func dialWS(t *testing.T, httpURL, path string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readUntil drains the connection until a message of the wanted type
// arrives. Broadcasts for other members may interleave.
func readUntil(t *testing.T, conn *websocket.Conn, messageType string) wsMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == messageType {
			return msg
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	server := newTestServer(t)

	// owner requests a connect token
	createEnvelope := postJSON(t, server.URL+"/api/v1/sessions", map[string]any{
		"project_id":   "project-1",
		"display_name": "alice",
	})
	var created struct {
		ConnectToken string `json:"connect_token"`
		MemberId     string `json:"member_id"`
	}
	require.NoError(t, json.Unmarshal(createEnvelope["data"], &created))
	require.NotEmpty(t, created.ConnectToken)

	// owner connects and opens the session
	aliceConn := dialWS(t, server.URL, "/api/v1/ws/session/create?connect-token="+created.ConnectToken)

	joinedMsg := readUntil(t, aliceConn, "SESSION_JOINED")
	var joined struct {
		Member session.Member       `json:"member"`
		State  session.SessionState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(joinedMsg.Payload, &joined))
	assert.Equal(t, session.RoleOwner, joined.Member.Role)
	assert.Equal(t, created.MemberId, joined.State.HostId)
	sessionId := joined.State.SessionId
	require.NotEmpty(t, sessionId)
	t.Log("session created")

	// second member joins as editor
	joinEnvelope := postJSON(t, fmt.Sprintf("%s/api/v1/sessions/%s/join", server.URL, sessionId), map[string]any{
		"display_name": "bob",
		"role":         "editor",
	})
	var joinToken struct {
		ConnectToken string `json:"connect_token"`
		MemberId     string `json:"member_id"`
	}
	require.NoError(t, json.Unmarshal(joinEnvelope["data"], &joinToken))

	bobConn := dialWS(t, server.URL, fmt.Sprintf("/api/v1/ws/session/%s/join?connect-token=%s", sessionId, joinToken.ConnectToken))

	bobJoinedMsg := readUntil(t, bobConn, "SESSION_JOINED")
	var bobJoined struct {
		Member session.Member       `json:"member"`
		State  session.SessionState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(bobJoinedMsg.Payload, &bobJoined))
	assert.Equal(t, session.RoleEditor, bobJoined.Member.Role)
	assert.Len(t, bobJoined.State.Members, 2)
	t.Log("member joined")

	// host starts playback; both members get the broadcast
	require.NoError(t, aliceConn.WriteJSON(map[string]any{"type": "PLAY", "payload": map[string]any{}}))

	playMsg := readUntil(t, bobConn, "PLAY")
	var playEvent bus.Event
	require.NoError(t, json.Unmarshal(playMsg.Payload, &playEvent))
	assert.Equal(t, created.MemberId, playEvent.AuthorId)
	readUntil(t, aliceConn, "PLAY")
	t.Log("playback started")

	// bob reports a position and gets a drift verdict back
	require.NoError(t, bobConn.WriteJSON(map[string]any{
		"type": "REPORT_POSITION",
		"payload": map[string]any{
			"position":    0.05,
			"reported_at": time.Now().UnixMilli(),
		},
	}))

	driftMsg := readUntil(t, bobConn, "DRIFT_REPORT")
	var report session.DriftReport
	require.NoError(t, json.Unmarshal(driftMsg.Payload, &report))
	assert.NotEmpty(t, report.Status)
	assert.NotEmpty(t, report.Quality)
	t.Log("position reported")

	// the host can read sync diagnostics over rest
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/sessions/%s/diagnostics", server.URL, sessionId), nil)
	require.NoError(t, err)
	req.Header.Set("Ts-Member-Id", created.MemberId)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJoinUnknownSession(t *testing.T) {
	server := newTestServer(t)

	data, err := json.Marshal(map[string]any{
		"display_name": "bob",
		"role":         "editor",
	})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/v1/sessions/no-such-session/join", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
