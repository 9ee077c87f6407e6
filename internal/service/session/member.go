package session

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/tabsync/server/internal/bus"
	"github.com/tabsync/server/internal/repository/connection"
	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

type ConnectMemberParams struct {
	Conn     *websocket.Conn
	MemberId string
}

func (s *service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	if err := s.connRepo.Add(params.Conn, params.MemberId); err != nil {
		s.logger.InfoContext(ctx, "failed to connect member", "error", err)
		return err
	}

	return nil
}

// disconnectMember runs inside the session actor. It is shared by the
// explicit leave path and the staleness sweeper.
func (s *service) disconnectMember(ctx context.Context, a *actor, memberId string) error {
	sessionId := a.sessionId

	sess, err := s.repo.GetSession(ctx, sessionId)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			return ErrSessionNotFound
		}

		return err
	}

	member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
		SessionId: sessionId,
		MemberId:  memberId,
	})
	if err != nil {
		if errors.Is(err, sessionrepo.ErrMemberNotFound) {
			return ErrMemberNotFound
		}

		return err
	}

	// leaving twice is a no-op
	if !member.IsConnected {
		return nil
	}

	if err := s.repo.UpdateMemberIsConnected(ctx, sessionId, memberId, false); err != nil {
		return err
	}
	delete(a.drift, memberId)

	if conn, err := s.connRepo.RemoveByMemberId(memberId); err == nil {
		// a conn without an underlying transport has nothing to close
		if conn.NetConn() != nil {
			conn.Close()
		}
	} else if !errors.Is(err, connection.ErrNotFound) {
		s.logger.InfoContext(ctx, "failed to remove conn", "error", err)
	}

	if err := s.publishEvent(ctx, sessionId, bus.EventLeave, memberId, LeavePayload{MemberId: memberId}); err != nil {
		return err
	}

	if sess.HostId == memberId {
		if err := s.freezeClock(ctx, sessionId); err != nil {
			return err
		}

		newHostId, err := s.pickNextHost(ctx, sessionId, memberId)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateSessionHost(ctx, sessionId, newHostId); err != nil {
			return err
		}
		if newHostId != "" {
			if err := s.publishEvent(ctx, sessionId, bus.EventHostTransfer, "", HostTransferPayload{
				NewHostId: newHostId,
				Reason:    "host_disconnected",
			}); err != nil {
				return err
			}
		}
	}

	members, err := s.getMembers(ctx, sessionId)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.IsConnected {
			return nil
		}
	}
	s.scheduleDestroy(a)

	return nil
}

type SetRoleParams struct {
	SessionId string
	ActorId   string
	TargetId  string
	NewRole   string
}

// SetRole changes the target's role. Granting owner transfers ownership:
// the acting owner is demoted to editor in the same operation, so the
// session always has exactly one owner.
func (s *service) SetRole(ctx context.Context, params *SetRoleParams) error {
	return s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.checkRole(ctx, params.SessionId, params.ActorId, RoleOwner); err != nil {
			return err
		}

		target, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: params.SessionId,
			MemberId:  params.TargetId,
		})
		if err != nil {
			if errors.Is(err, sessionrepo.ErrMemberNotFound) {
				return ErrMemberNotFound
			}

			return err
		}

		if roleRank(params.NewRole) == 0 {
			return ErrInvalidTransition
		}
		if target.Role == params.NewRole {
			return nil
		}
		if target.Role == RoleOwner && params.NewRole != RoleOwner {
			// the actor passed the owner check, so the target here is the
			// actor itself: demoting the sole owner is not allowed.
			return ErrInvalidTransition
		}

		if params.NewRole == RoleOwner {
			if err := s.repo.UpdateMemberRole(ctx, params.SessionId, params.TargetId, RoleOwner); err != nil {
				return err
			}
			if err := s.repo.UpdateMemberRole(ctx, params.SessionId, params.ActorId, RoleEditor); err != nil {
				return err
			}

			if err := s.publishEvent(ctx, params.SessionId, bus.EventRoleChanged, params.ActorId, RoleChangedPayload{
				MemberId: params.TargetId,
				Role:     RoleOwner,
			}); err != nil {
				return err
			}

			return s.publishEvent(ctx, params.SessionId, bus.EventRoleChanged, params.ActorId, RoleChangedPayload{
				MemberId: params.ActorId,
				Role:     RoleEditor,
			})
		}

		if err := s.repo.UpdateMemberRole(ctx, params.SessionId, params.TargetId, params.NewRole); err != nil {
			return err
		}

		return s.publishEvent(ctx, params.SessionId, bus.EventRoleChanged, params.ActorId, RoleChangedPayload{
			MemberId: params.TargetId,
			Role:     params.NewRole,
		})
	})
}

type SetListeningParams struct {
	SessionId   string
	MemberId    string
	IsListening bool
}

// SetListening toggles membership of the shared playback group. Members
// who opt out stop being drift-corrected and swept for staleness.
func (s *service) SetListening(ctx context.Context, params *SetListeningParams) error {
	return s.do(ctx, params.SessionId, func(a *actor) error {
		if err := s.repo.UpdateMemberIsListening(ctx, params.SessionId, params.MemberId, params.IsListening); err != nil {
			if errors.Is(err, sessionrepo.ErrMemberNotFound) {
				return ErrMemberNotFound
			}

			return err
		}

		if !params.IsListening {
			delete(a.drift, params.MemberId)
		}

		return nil
	})
}

func (s *service) scheduleDestroy(a *actor) {
	if a.destroyTimer != nil {
		a.destroyTimer.Stop()
	}

	sessionId := a.sessionId
	a.destroyTimer = s.clock.AfterFunc(s.cfg.DestroyGracePeriod, func() {
		if err := s.destroySessionIfIdle(context.Background(), sessionId); err != nil {
			s.logger.Warn("failed to destroy idle session",
				"session_id", sessionId,
				"error", err,
			)
		}
	})
}

func (s *service) cancelDestroy(a *actor) {
	if a.destroyTimer != nil {
		a.destroyTimer.Stop()
		a.destroyTimer = nil
	}
}

// destroySessionIfIdle tears the session down unless a member reconnected
// during the grace period.
func (s *service) destroySessionIfIdle(ctx context.Context, sessionId string) error {
	return s.do(ctx, sessionId, func(a *actor) error {
		if _, err := s.repo.GetSession(ctx, sessionId); err != nil {
			if errors.Is(err, sessionrepo.ErrSessionNotFound) {
				s.stopActor(a)
				return nil
			}

			return err
		}

		members, err := s.getMembers(ctx, sessionId)
		if err != nil {
			return err
		}

		for _, m := range members {
			if m.IsConnected {
				return nil
			}
		}

		if err := s.repo.RemoveSession(ctx, sessionId); err != nil {
			return err
		}
		s.bus.CloseSession(sessionId)
		s.stopActor(a)

		s.logger.Info("session destroyed", "session_id", sessionId)

		return nil
	})
}
