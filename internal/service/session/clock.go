package session

import (
	"context"
	"errors"

	"github.com/tabsync/server/internal/bus"
	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

// currentPosition extrapolates the authoritative position to nowMs.
func currentPosition(clock sessionrepo.Clock, nowMs int64) float64 {
	if !clock.IsPlaying {
		return clock.Position
	}

	return clock.Position + float64(nowMs-clock.UpdatedAt)/1000.0
}

func (s *service) getSessionForHostOp(ctx context.Context, sessionId, senderId string) (sessionrepo.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionId)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			return sessionrepo.Session{}, ErrSessionNotFound
		}

		return sessionrepo.Session{}, err
	}

	if sess.HostId != senderId {
		return sessionrepo.Session{}, ErrNotHost
	}

	return sess, nil
}

type PlayParams struct {
	SessionId string
	SenderId  string
}

func (s *service) Play(ctx context.Context, params *PlayParams) (ClockState, error) {
	var state ClockState
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.getSessionForHostOp(ctx, params.SessionId, params.SenderId); err != nil {
			return err
		}

		clock, err := s.repo.GetClock(ctx, params.SessionId)
		if err != nil {
			return err
		}

		if clock.IsPlaying {
			state = ClockState{Position: clock.Position, IsPlaying: true, UpdatedAt: clock.UpdatedAt}
			return nil
		}

		now := s.now()
		if err := s.repo.UpdateClock(ctx, &sessionrepo.UpdateClockParams{
			SessionId: params.SessionId,
			Position:  clock.Position,
			IsPlaying: true,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		state = ClockState{Position: clock.Position, IsPlaying: true, UpdatedAt: now}

		return s.publishEvent(ctx, params.SessionId, bus.EventPlay, params.SenderId, PlaybackPayload{Position: clock.Position})
	})

	return state, err
}

type PauseParams struct {
	SessionId string
	SenderId  string
}

func (s *service) Pause(ctx context.Context, params *PauseParams) (ClockState, error) {
	var state ClockState
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.getSessionForHostOp(ctx, params.SessionId, params.SenderId); err != nil {
			return err
		}

		clock, err := s.repo.GetClock(ctx, params.SessionId)
		if err != nil {
			return err
		}

		if !clock.IsPlaying {
			state = ClockState{Position: clock.Position, IsPlaying: false, UpdatedAt: clock.UpdatedAt}
			return nil
		}

		now := s.now()
		position := currentPosition(clock, now)
		if err := s.repo.UpdateClock(ctx, &sessionrepo.UpdateClockParams{
			SessionId: params.SessionId,
			Position:  position,
			IsPlaying: false,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		state = ClockState{Position: position, IsPlaying: false, UpdatedAt: now}

		return s.publishEvent(ctx, params.SessionId, bus.EventPause, params.SenderId, PlaybackPayload{Position: position})
	})

	return state, err
}

type SeekParams struct {
	SessionId string
	SenderId  string
	Position  float64
}

// Seek pauses before applying the new position: scrubbing never plays
// ahead, so late joiners always see an unambiguous position change.
func (s *service) Seek(ctx context.Context, params *SeekParams) (ClockState, error) {
	var state ClockState
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.getSessionForHostOp(ctx, params.SessionId, params.SenderId); err != nil {
			return err
		}

		now := s.now()
		if err := s.repo.UpdateClock(ctx, &sessionrepo.UpdateClockParams{
			SessionId: params.SessionId,
			Position:  params.Position,
			IsPlaying: false,
			UpdatedAt: now,
		}); err != nil {
			if errors.Is(err, sessionrepo.ErrClockNotFound) {
				return ErrSessionNotFound
			}

			return err
		}

		state = ClockState{Position: params.Position, IsPlaying: false, UpdatedAt: now}

		return s.publishEvent(ctx, params.SessionId, bus.EventSeek, params.SenderId, PlaybackPayload{Position: params.Position})
	})

	return state, err
}

type TransferHostParams struct {
	SessionId string
	SenderId  string
	NewHostId string
}

// TransferHost hands playback control to another connected editor-or-above
// member. The current host may transfer voluntarily; an owner may transfer
// away from any host.
func (s *service) TransferHost(ctx context.Context, params *TransferHostParams) error {
	return s.do(ctx, params.SessionId, func(a *actor) error {
		sess, err := s.repo.GetSession(ctx, params.SessionId)
		if err != nil {
			if errors.Is(err, sessionrepo.ErrSessionNotFound) {
				return ErrSessionNotFound
			}

			return err
		}

		if sess.HostId != params.SenderId {
			sender, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
				SessionId: params.SessionId,
				MemberId:  params.SenderId,
			})
			if err != nil {
				if errors.Is(err, sessionrepo.ErrMemberNotFound) {
					return ErrMemberNotFound
				}

				return err
			}
			if sender.Role != RoleOwner {
				return ErrForbidden
			}
		}

		if params.NewHostId == sess.HostId {
			return nil
		}

		target, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: params.SessionId,
			MemberId:  params.NewHostId,
		})
		if err != nil {
			if errors.Is(err, sessionrepo.ErrMemberNotFound) {
				return ErrMemberNotFound
			}

			return err
		}
		if !target.IsConnected || roleRank(target.Role) < roleRank(RoleEditor) {
			return ErrInvalidTransition
		}

		if err := s.repo.UpdateSessionHost(ctx, params.SessionId, params.NewHostId); err != nil {
			return err
		}

		return s.publishEvent(ctx, params.SessionId, bus.EventHostTransfer, params.SenderId, HostTransferPayload{
			NewHostId: params.NewHostId,
			Reason:    "requested",
		})
	})
}

// pickNextHost deterministically selects the replacement host: the first
// connected owner in join order, then the first connected editor. Join
// order is tenure, so every replica converges on the same pick.
func (s *service) pickNextHost(ctx context.Context, sessionId, excludeId string) (string, error) {
	memberIds, err := s.repo.GetMemberIds(ctx, sessionId)
	if err != nil {
		return "", err
	}

	firstEditor := ""
	for _, memberId := range memberIds {
		if memberId == excludeId {
			continue
		}

		member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: sessionId,
			MemberId:  memberId,
		})
		if err != nil {
			return "", err
		}
		if !member.IsConnected {
			continue
		}

		switch member.Role {
		case RoleOwner:
			return memberId, nil
		case RoleEditor:
			if firstEditor == "" {
				firstEditor = memberId
			}
		}
	}

	return firstEditor, nil
}

// reassignHostIfDisconnected restores a live host after a reconnect into a
// session whose host went away while nobody eligible was connected.
func (s *service) reassignHostIfDisconnected(ctx context.Context, sessionId, hostId string) error {
	if hostId != "" {
		host, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: sessionId,
			MemberId:  hostId,
		})
		if err == nil && host.IsConnected {
			return nil
		}
		if err != nil && !errors.Is(err, sessionrepo.ErrMemberNotFound) {
			return err
		}
	}

	newHostId, err := s.pickNextHost(ctx, sessionId, "")
	if err != nil {
		return err
	}
	if newHostId == "" || newHostId == hostId {
		return nil
	}

	if err := s.repo.UpdateSessionHost(ctx, sessionId, newHostId); err != nil {
		return err
	}

	return s.publishEvent(ctx, sessionId, bus.EventHostTransfer, "", HostTransferPayload{
		NewHostId: newHostId,
		Reason:    "host_reassigned",
	})
}

// freezeClock pauses playback at the extrapolated position, used when the
// host disconnects mid-playback.
func (s *service) freezeClock(ctx context.Context, sessionId string) error {
	clock, err := s.repo.GetClock(ctx, sessionId)
	if err != nil {
		return err
	}
	if !clock.IsPlaying {
		return nil
	}

	now := s.now()
	position := currentPosition(clock, now)
	if err := s.repo.UpdateClock(ctx, &sessionrepo.UpdateClockParams{
		SessionId: sessionId,
		Position:  position,
		IsPlaying: false,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	return s.publishEvent(ctx, sessionId, bus.EventPause, "", PlaybackPayload{Position: position})
}
