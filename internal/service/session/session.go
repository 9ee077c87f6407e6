package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tabsync/server/internal/bus"
	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

type CreateSessionTokenParams struct {
	ProjectId   string
	MemberId    string
	DisplayName string
}

// CreateSessionToken reserves a single-use connect token for opening a
// session on a project. The duplicate-session check here is advisory; the
// authoritative guard is the project reservation made by CreateSession.
func (s *service) CreateSessionToken(ctx context.Context, params *CreateSessionTokenParams) (string, error) {
	if _, err := s.repo.GetSessionIdByProjectId(ctx, params.ProjectId); err == nil {
		return "", ErrSessionAlreadyExists
	}

	token := uuid.NewString()
	if err := s.repo.SetCreateSession(ctx, &sessionrepo.SetCreateSessionParams{
		Token:       token,
		ProjectId:   params.ProjectId,
		MemberId:    params.MemberId,
		DisplayName: params.DisplayName,
	}); err != nil {
		return "", err
	}

	return token, nil
}

type JoinSessionTokenParams struct {
	SessionId   string
	MemberId    string
	DisplayName string
	// GrantedRole is the ceiling computed by the authorization
	// collaborator. This service trusts it as given.
	GrantedRole string
}

func (s *service) JoinSessionToken(ctx context.Context, params *JoinSessionTokenParams) (string, error) {
	if _, err := s.repo.GetSession(ctx, params.SessionId); err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			return "", ErrSessionNotFound
		}

		return "", err
	}

	token := uuid.NewString()
	if err := s.repo.SetJoinSession(ctx, &sessionrepo.SetJoinSessionParams{
		Token:       token,
		SessionId:   params.SessionId,
		MemberId:    params.MemberId,
		DisplayName: params.DisplayName,
		GrantedRole: params.GrantedRole,
	}); err != nil {
		return "", err
	}

	return token, nil
}

type CreateSessionParams struct {
	Token string
}

type CreateSessionResponse struct {
	SessionId string
	Member    Member
	State     SessionState
}

// CreateSession opens the session for the project referenced by the
// token, with the creator as sole owner and initial host.
func (s *service) CreateSession(ctx context.Context, params *CreateSessionParams) (CreateSessionResponse, error) {
	createSession, err := s.repo.GetCreateSession(ctx, params.Token)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrTokenNotFound) {
			return CreateSessionResponse{}, ErrTokenNotFound
		}

		return CreateSessionResponse{}, err
	}

	sessionId := uuid.NewString()

	var resp CreateSessionResponse
	err = s.do(ctx, sessionId, func(a *actor) error {
		now := s.now()

		if err := s.repo.SetSession(ctx, &sessionrepo.SetSessionParams{
			SessionId: sessionId,
			ProjectId: createSession.ProjectId,
			HostId:    createSession.MemberId,
			CreatedAt: now,
		}); err != nil {
			if errors.Is(err, sessionrepo.ErrProjectSessionExists) {
				return ErrSessionAlreadyExists
			}

			return err
		}

		if err := s.repo.SetMember(ctx, &sessionrepo.SetMemberParams{
			SessionId:   sessionId,
			MemberId:    createSession.MemberId,
			DisplayName: createSession.DisplayName,
			Role:        RoleOwner,
			IsConnected: true,
			IsListening: true,
			JoinedAt:    now,
		}); err != nil {
			return err
		}

		if err := s.repo.SetClock(ctx, &sessionrepo.SetClockParams{
			SessionId: sessionId,
			Position:  0,
			IsPlaying: false,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		member := Member{
			Id:          createSession.MemberId,
			DisplayName: createSession.DisplayName,
			Role:        RoleOwner,
			IsConnected: true,
			IsListening: true,
		}
		if err := s.publishEvent(ctx, sessionId, bus.EventJoin, createSession.MemberId, JoinPayload{Member: member}); err != nil {
			return err
		}

		state, err := s.getSessionState(ctx, sessionId)
		if err != nil {
			return err
		}

		resp = CreateSessionResponse{
			SessionId: sessionId,
			Member:    member,
			State:     state,
		}

		return nil
	})
	if err != nil {
		return CreateSessionResponse{}, err
	}

	s.logger.InfoContext(ctx, "session created",
		"session_id", resp.SessionId,
		"project_id", createSession.ProjectId,
		"owner_id", createSession.MemberId,
	)

	return resp, nil
}

type JoinSessionParams struct {
	Token string
	// SessionId from the request path; must match the token's session.
	SessionId string
	// RequestedRole may not exceed the token's granted role. Empty means
	// "whatever was granted".
	RequestedRole string
}

type JoinSessionResponse struct {
	Member Member
	State  SessionState
}

func (s *service) JoinSession(ctx context.Context, params *JoinSessionParams) (JoinSessionResponse, error) {
	joinSession, err := s.repo.GetJoinSession(ctx, params.Token)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrTokenNotFound) {
			return JoinSessionResponse{}, ErrTokenNotFound
		}

		return JoinSessionResponse{}, err
	}

	if params.SessionId != "" && params.SessionId != joinSession.SessionId {
		return JoinSessionResponse{}, ErrForbidden
	}
	sessionId := joinSession.SessionId

	requestedRole := params.RequestedRole
	if requestedRole == "" {
		requestedRole = joinSession.GrantedRole
	}
	if roleRank(requestedRole) == 0 || roleRank(requestedRole) > roleRank(joinSession.GrantedRole) {
		return JoinSessionResponse{}, ErrRoleDenied
	}

	var resp JoinSessionResponse
	err = s.do(ctx, sessionId, func(a *actor) error {
		sess, err := s.repo.GetSession(ctx, sessionId)
		if err != nil {
			if errors.Is(err, sessionrepo.ErrSessionNotFound) {
				return ErrSessionNotFound
			}

			return err
		}

		now := s.now()

		existing, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: sessionId,
			MemberId:  joinSession.MemberId,
		})
		switch {
		case err == nil:
			// reconnect keeps the member's role and tenure
			if err := s.repo.UpdateMemberIsConnected(ctx, sessionId, joinSession.MemberId, true); err != nil {
				return err
			}
			existing.IsConnected = true
		case errors.Is(err, sessionrepo.ErrMemberNotFound):
			memberIds, err := s.repo.GetMemberIds(ctx, sessionId)
			if err != nil {
				return err
			}
			if len(memberIds) >= s.cfg.MembersLimit {
				return ErrMembersLimitReached
			}

			existing = sessionrepo.Member{
				DisplayName: joinSession.DisplayName,
				Role:        requestedRole,
				IsConnected: true,
				IsListening: true,
				JoinedAt:    now,
			}
			if err := s.repo.SetMember(ctx, &sessionrepo.SetMemberParams{
				SessionId:   sessionId,
				MemberId:    joinSession.MemberId,
				DisplayName: existing.DisplayName,
				Role:        existing.Role,
				IsConnected: true,
				IsListening: true,
				JoinedAt:    now,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		s.cancelDestroy(a)

		member := Member{
			Id:          joinSession.MemberId,
			DisplayName: existing.DisplayName,
			Role:        existing.Role,
			IsConnected: true,
			IsListening: existing.IsListening,
		}
		if err := s.publishEvent(ctx, sessionId, bus.EventJoin, joinSession.MemberId, JoinPayload{Member: member}); err != nil {
			return err
		}

		// playback was frozen while the host was away; hand control to the
		// best connected candidate now that someone is back.
		if err := s.reassignHostIfDisconnected(ctx, sessionId, sess.HostId); err != nil {
			return err
		}

		state, err := s.getSessionState(ctx, sessionId)
		if err != nil {
			return err
		}

		resp = JoinSessionResponse{Member: member, State: state}

		return nil
	})
	if err != nil {
		return JoinSessionResponse{}, err
	}

	s.logger.InfoContext(ctx, "member joined",
		"session_id", sessionId,
		"member_id", resp.Member.Id,
		"role", resp.Member.Role,
	)

	return resp, nil
}

type LeaveSessionParams struct {
	SessionId string
	MemberId  string
}

// LeaveSession marks the member disconnected and runs host reassignment
// when the host left. Leaving an already-disconnected member is a no-op.
func (s *service) LeaveSession(ctx context.Context, params *LeaveSessionParams) error {
	return s.do(ctx, params.SessionId, func(a *actor) error {
		return s.disconnectMember(ctx, a, params.MemberId)
	})
}

func (s *service) GetSessionState(ctx context.Context, sessionId string) (SessionState, error) {
	var state SessionState
	err := s.do(ctx, sessionId, func(a *actor) error {
		var err error
		state, err = s.getSessionState(ctx, sessionId)
		return err
	})

	return state, err
}

// Subscribe returns the session's event feed starting at fromSeq. Late
// joiners pass the LastSequence from their state snapshot plus one.
func (s *service) Subscribe(ctx context.Context, sessionId string, fromSeq int64) (*bus.Subscription, error) {
	if _, err := s.repo.GetSession(ctx, sessionId); err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}

		return nil, err
	}

	return s.bus.Subscribe(ctx, sessionId, fromSeq)
}

func (s *service) Unsubscribe(sub *bus.Subscription) {
	s.bus.Unsubscribe(sub)
}
