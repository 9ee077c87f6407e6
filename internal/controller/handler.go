package controller

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tabsync/server/internal/bus"
	"github.com/tabsync/server/internal/service/session"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// writeMu serializes writes per connection: the event pump and the message
// handlers write concurrently.
var writeMu sync.Map

func (c controller) writeToConn(ctx context.Context, conn *websocket.Conn, output *Output) error {
	muAny, _ := writeMu.LoadOrStore(conn, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)

	mu.Lock()
	defer mu.Unlock()

	return conn.WriteJSON(output)
}

func (c controller) wsError(ctx context.Context, conn *websocket.Conn, err error) {
	c.logger.InfoContext(ctx, "websocket handler error", "error", err)
	if writeErr := c.writeToConn(ctx, conn, &Output{
		Type:    "ERROR",
		Payload: map[string]any{"message": err.Error()},
	}); writeErr != nil {
		c.logger.InfoContext(ctx, "failed to write error", "error", writeErr)
	}
}

func (c controller) createSession(w http.ResponseWriter, r *http.Request) {
	connectToken := r.URL.Query().Get("connect-token")
	if connectToken == "" {
		c.logger.DebugContext(r.Context(), "empty connect token")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	createSessionResponse, err := c.sessionService.CreateSession(r.Context(), &session.CreateSessionParams{
		Token: connectToken,
	})
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to create session", "error", err)
		w.WriteHeader(statusForError(err))
		return
	}

	c.serveMember(w, r, createSessionResponse.SessionId, createSessionResponse.Member, createSessionResponse.State)
}

func (c controller) joinSession(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "session-id")
	if sessionId == "" {
		c.logger.DebugContext(r.Context(), "empty session id")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	connectToken := r.URL.Query().Get("connect-token")
	if connectToken == "" {
		c.logger.DebugContext(r.Context(), "empty connect token")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	joinSessionResponse, err := c.sessionService.JoinSession(r.Context(), &session.JoinSessionParams{
		Token:         connectToken,
		SessionId:     sessionId,
		RequestedRole: r.URL.Query().Get("role"),
	})
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to join session", "error", err)
		w.WriteHeader(statusForError(err))
		return
	}

	c.serveMember(w, r, sessionId, joinSessionResponse.Member, joinSessionResponse.State)
}

// serveMember upgrades the connection and runs it until it drops: snapshot
// first, then the event feed from the snapshot's cursor, with inbound
// messages dispatched to the ws mux in between.
func (c controller) serveMember(w http.ResponseWriter, r *http.Request, sessionId string, member session.Member, state session.SessionState) {
	defer func() {
		if err := c.sessionService.LeaveSession(context.Background(), &session.LeaveSessionParams{
			SessionId: sessionId,
			MemberId:  member.Id,
		}); err != nil {
			c.logger.InfoContext(r.Context(), "failed to leave session", "error", err)
		}
	}()

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	defer func() {
		conn.Close()
		writeMu.Delete(conn)
	}()

	if err := c.sessionService.ConnectMember(r.Context(), &session.ConnectMemberParams{
		Conn:     conn,
		MemberId: member.Id,
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to connect member", "error", err)
		return
	}

	if err := c.writeToConn(r.Context(), conn, &Output{
		Type: "SESSION_JOINED",
		Payload: map[string]any{
			"member": member,
			"state":  state,
		},
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write json", "error", err)
		return
	}

	sub, err := c.sessionService.Subscribe(r.Context(), sessionId, state.LastSequence+1)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to subscribe", "error", err)
		return
	}
	defer c.sessionService.Unsubscribe(sub)

	go c.pumpEvents(r.Context(), conn, sub)

	ctx := context.WithValue(r.Context(), sessionIdCtxKey, sessionId)
	ctx = context.WithValue(ctx, memberIdCtxKey, member.Id)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(r.Context(), "connection closed", "error", err)
	}
}

// pumpEvents forwards the session feed to the connection. A closed
// subscription channel means the member was dropped as a slow consumer or
// the session was destroyed; either way the connection is closed and the
// read loop unwinds through the leave path.
func (c controller) pumpEvents(ctx context.Context, conn *websocket.Conn, sub *bus.Subscription) {
	for event := range sub.C {
		if err := c.writeToConn(ctx, conn, &Output{
			Type:    event.Type,
			Payload: event,
		}); err != nil {
			c.logger.InfoContext(ctx, "failed to write event", "error", err)
			return
		}
	}

	conn.Close()
}
