package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsync/server/internal/bus"
	"github.com/tabsync/server/internal/repository/connection/inmemory"
	sessionredis "github.com/tabsync/server/internal/repository/session/redis"
)

type testEnv struct {
	svc   *service
	clock *clockwork.FakeClock
	bus   *bus.Bus
}

func newTestEnv(t *testing.T, cfg Config, metrics MetricsSource) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := sessionredis.NewRepo(rc, time.Hour)
	connRepo := inmemory.NewRepo()
	logger := slog.Default()
	eventBus := bus.New(repo, logger, bus.DefaultQueueSize)
	clk := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))

	return &testEnv{
		svc:   NewService(repo, connRepo, eventBus, metrics, clk, logger, cfg),
		clock: clk,
		bus:   eventBus,
	}
}

func (e *testEnv) createSession(t *testing.T, projectId, memberId, displayName string) CreateSessionResponse {
	t.Helper()
	ctx := context.Background()

	token, err := e.svc.CreateSessionToken(ctx, &CreateSessionTokenParams{
		ProjectId:   projectId,
		MemberId:    memberId,
		DisplayName: displayName,
	})
	require.NoError(t, err)

	resp, err := e.svc.CreateSession(ctx, &CreateSessionParams{Token: token})
	require.NoError(t, err)

	return resp
}

func (e *testEnv) join(t *testing.T, sessionId, memberId, displayName, role string) JoinSessionResponse {
	t.Helper()
	ctx := context.Background()

	token, err := e.svc.JoinSessionToken(ctx, &JoinSessionTokenParams{
		SessionId:   sessionId,
		MemberId:    memberId,
		DisplayName: displayName,
		GrantedRole: role,
	})
	require.NoError(t, err)

	resp, err := e.svc.JoinSession(ctx, &JoinSessionParams{Token: token, SessionId: sessionId})
	require.NoError(t, err)

	return resp
}

func TestCreateSession(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	resp := e.createSession(t, "project-1", "member-a", "alice")
	assert.NotEmpty(t, resp.SessionId, "session id is empty")
	assert.Equal(t, RoleOwner, resp.Member.Role, "creator must be owner")
	assert.Equal(t, resp.Member.Id, resp.State.HostId, "creator must be host")
	assert.Equal(t, "project-1", resp.State.ProjectId)
	assert.Equal(t, 0.0, resp.State.Clock.Position, "clock must start at zero")
	assert.False(t, resp.State.Clock.IsPlaying, "clock must start paused")
	assert.True(t, resp.Member.IsListening, "members listen by default")
	assert.Equal(t, int64(1), resp.State.LastSequence, "creator join must be event 1")

	// one session per project
	_, err := e.svc.CreateSessionToken(ctx, &CreateSessionTokenParams{
		ProjectId:   "project-1",
		MemberId:    "member-b",
		DisplayName: "bob",
	})
	assert.ErrorIs(t, err, ErrSessionAlreadyExists)
}

func TestCreateSessionTokenIsSingleUse(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	token, err := e.svc.CreateSessionToken(ctx, &CreateSessionTokenParams{
		ProjectId:   "project-1",
		MemberId:    "member-a",
		DisplayName: "alice",
	})
	require.NoError(t, err)

	_, err = e.svc.CreateSession(ctx, &CreateSessionParams{Token: token})
	require.NoError(t, err)

	_, err = e.svc.CreateSession(ctx, &CreateSessionParams{Token: token})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestJoinSession(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")

	joined := e.join(t, created.SessionId, "member-b", "bob", RoleEditor)
	assert.Equal(t, RoleEditor, joined.Member.Role)
	assert.True(t, joined.Member.IsConnected)
	require.Len(t, joined.State.Members, 2, "member list must contain 2 members")
	assert.Equal(t, "member-a", joined.State.Members[0].Id, "join order must be preserved")
	assert.Equal(t, "member-b", joined.State.Members[1].Id)

	// requested role may not exceed the granted one
	token, err := e.svc.JoinSessionToken(ctx, &JoinSessionTokenParams{
		SessionId:   created.SessionId,
		MemberId:    "member-c",
		DisplayName: "carol",
		GrantedRole: RoleViewer,
	})
	require.NoError(t, err)
	_, err = e.svc.JoinSession(ctx, &JoinSessionParams{
		Token:         token,
		SessionId:     created.SessionId,
		RequestedRole: RoleEditor,
	})
	assert.ErrorIs(t, err, ErrRoleDenied)
}

func TestJoinSessionWrongSessionId(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")

	token, err := e.svc.JoinSessionToken(ctx, &JoinSessionTokenParams{
		SessionId:   created.SessionId,
		MemberId:    "member-b",
		DisplayName: "bob",
		GrantedRole: RoleEditor,
	})
	require.NoError(t, err)

	_, err = e.svc.JoinSession(ctx, &JoinSessionParams{Token: token, SessionId: "other-session"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestJoinSessionMembersLimit(t *testing.T) {
	e := newTestEnv(t, Config{MembersLimit: 2}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)

	token, err := e.svc.JoinSessionToken(ctx, &JoinSessionTokenParams{
		SessionId:   created.SessionId,
		MemberId:    "member-c",
		DisplayName: "carol",
		GrantedRole: RoleViewer,
	})
	require.NoError(t, err)
	_, err = e.svc.JoinSession(ctx, &JoinSessionParams{Token: token, SessionId: created.SessionId})
	assert.ErrorIs(t, err, ErrMembersLimitReached)
}

func TestReconnectKeepsRoleAndTenure(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)
	e.join(t, created.SessionId, "member-c", "carol", RoleViewer)

	require.NoError(t, e.svc.LeaveSession(ctx, &LeaveSessionParams{
		SessionId: created.SessionId,
		MemberId:  "member-b",
	}))

	// rejoin with a viewer grant; the stored editor role wins
	rejoined := e.join(t, created.SessionId, "member-b", "bob", RoleViewer)
	assert.Equal(t, RoleEditor, rejoined.Member.Role, "reconnect must keep the stored role")
	require.Len(t, rejoined.State.Members, 3)
	assert.Equal(t, "member-b", rejoined.State.Members[1].Id, "reconnect must keep the join order slot")
}

func TestLeaveSessionIdempotent(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)

	params := &LeaveSessionParams{SessionId: created.SessionId, MemberId: "member-b"}
	require.NoError(t, e.svc.LeaveSession(ctx, params))
	require.NoError(t, e.svc.LeaveSession(ctx, params), "second leave must be a no-op")

	state, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)
	assert.False(t, state.Members[1].IsConnected)
}

func TestSessionDestroyedAfterGracePeriod(t *testing.T) {
	e := newTestEnv(t, Config{DestroyGracePeriod: 10 * time.Second}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")

	require.NoError(t, e.svc.LeaveSession(ctx, &LeaveSessionParams{
		SessionId: created.SessionId,
		MemberId:  "member-a",
	}))

	// still there within the grace period
	_, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)

	e.clock.Advance(11 * time.Second)

	require.Eventually(t, func() bool {
		_, err := e.svc.GetSessionState(context.Background(), created.SessionId)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond, "session must be destroyed after the grace period")

	_, err = e.svc.GetSessionState(ctx, created.SessionId)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReconnectCancelsDestroy(t *testing.T) {
	e := newTestEnv(t, Config{DestroyGracePeriod: 10 * time.Second}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")

	require.NoError(t, e.svc.LeaveSession(ctx, &LeaveSessionParams{
		SessionId: created.SessionId,
		MemberId:  "member-a",
	}))
	e.join(t, created.SessionId, "member-a", "alice", RoleViewer)

	e.clock.Advance(11 * time.Second)

	// give a pending destroy a chance to fire wrongly
	time.Sleep(50 * time.Millisecond)

	_, err := e.svc.GetSessionState(ctx, created.SessionId)
	assert.NoError(t, err, "reconnect must cancel the scheduled destroy")
}

func TestSetRoleOwnershipTransfer(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)

	// non-owner may not change roles
	err := e.svc.SetRole(ctx, &SetRoleParams{
		SessionId: created.SessionId,
		ActorId:   "member-b",
		TargetId:  "member-b",
		NewRole:   RoleOwner,
	})
	assert.ErrorIs(t, err, ErrForbidden)

	// owner demoting itself would leave the session ownerless
	err = e.svc.SetRole(ctx, &SetRoleParams{
		SessionId: created.SessionId,
		ActorId:   "member-a",
		TargetId:  "member-a",
		NewRole:   RoleViewer,
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// granting owner transfers ownership and demotes the old owner
	require.NoError(t, e.svc.SetRole(ctx, &SetRoleParams{
		SessionId: created.SessionId,
		ActorId:   "member-a",
		TargetId:  "member-b",
		NewRole:   RoleOwner,
	}))

	state, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, state.Members[0].Role, "old owner must become editor")
	assert.Equal(t, RoleOwner, state.Members[1].Role)
}
