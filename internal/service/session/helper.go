package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tabsync/server/internal/bus"
	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

func (s *service) publishEvent(ctx context.Context, sessionId, eventType, authorId string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if _, err := s.bus.Publish(ctx, bus.Event{
		SessionId: sessionId,
		Type:      eventType,
		Payload:   data,
		AuthorId:  authorId,
		IssuedAt:  s.now(),
	}); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}

// getMembers returns the session's members in join order.
func (s *service) getMembers(ctx context.Context, sessionId string) ([]Member, error) {
	memberIds, err := s.repo.GetMemberIds(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(memberIds))
	for _, memberId := range memberIds {
		member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: sessionId,
			MemberId:  memberId,
		})
		if err != nil {
			return nil, err
		}

		members = append(members, Member{
			Id:          memberId,
			DisplayName: member.DisplayName,
			Role:        member.Role,
			IsConnected: member.IsConnected,
			IsListening: member.IsListening,
		})
	}

	return members, nil
}

// checkRole fetches the member and verifies it holds at least minRole.
func (s *service) checkRole(ctx context.Context, sessionId, memberId, minRole string) (sessionrepo.Member, error) {
	member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
		SessionId: sessionId,
		MemberId:  memberId,
	})
	if err != nil {
		if errors.Is(err, sessionrepo.ErrMemberNotFound) {
			return sessionrepo.Member{}, ErrMemberNotFound
		}

		return sessionrepo.Member{}, err
	}

	if roleRank(member.Role) < roleRank(minRole) {
		return sessionrepo.Member{}, ErrForbidden
	}

	return member, nil
}

func (s *service) getSessionState(ctx context.Context, sessionId string) (SessionState, error) {
	sess, err := s.repo.GetSession(ctx, sessionId)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			return SessionState{}, ErrSessionNotFound
		}

		return SessionState{}, err
	}

	clock, err := s.repo.GetClock(ctx, sessionId)
	if err != nil {
		return SessionState{}, err
	}

	members, err := s.getMembers(ctx, sessionId)
	if err != nil {
		return SessionState{}, err
	}

	comments, err := s.getComments(ctx, sessionId)
	if err != nil {
		return SessionState{}, err
	}

	edits, err := s.getEdits(ctx, sessionId)
	if err != nil {
		return SessionState{}, err
	}

	lastSeq, err := s.repo.GetLastSequence(ctx, sessionId)
	if err != nil {
		return SessionState{}, err
	}

	return SessionState{
		SessionId: sessionId,
		ProjectId: sess.ProjectId,
		HostId:    sess.HostId,
		Clock: ClockState{
			Position:  clock.Position,
			IsPlaying: clock.IsPlaying,
			UpdatedAt: clock.UpdatedAt,
		},
		Members:      members,
		Comments:     comments,
		Edits:        edits,
		LastSequence: lastSeq,
	}, nil
}

func (s *service) getComments(ctx context.Context, sessionId string) ([]Comment, error) {
	commentIds, err := s.repo.GetCommentIds(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(commentIds))
	for _, commentId := range commentIds {
		comment, err := s.repo.GetComment(ctx, &sessionrepo.GetCommentParams{
			SessionId: sessionId,
			CommentId: commentId,
		})
		if err != nil {
			return nil, err
		}

		comments = append(comments, Comment{
			Id:        commentId,
			AuthorId:  comment.AuthorId,
			Content:   comment.Content,
			Anchor:    comment.Anchor,
			Timecode:  comment.Timecode,
			Resolved:  comment.Resolved,
			CreatedAt: comment.CreatedAt,
		})
	}

	return comments, nil
}

func (s *service) getEdits(ctx context.Context, sessionId string) ([]Edit, error) {
	repoEdits, err := s.repo.GetEdits(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	edits := make([]Edit, 0, len(repoEdits))
	for _, edit := range repoEdits {
		edits = append(edits, Edit{
			Id:          edit.Id,
			AuthorId:    edit.AuthorId,
			Section:     edit.Section,
			Description: edit.Description,
			Timecode:    edit.Timecode,
			AppliedAt:   edit.AppliedAt,
		})
	}

	return edits, nil
}
