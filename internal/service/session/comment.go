package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tabsync/server/internal/bus"
	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

type AddCommentParams struct {
	SessionId string
	AuthorId  string
	Content   string
	Anchor    int
	Timecode  float64
}

// AddComment attaches a timestamped note to the project. Editors and
// owners only.
func (s *service) AddComment(ctx context.Context, params *AddCommentParams) (Comment, error) {
	var comment Comment
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.checkRole(ctx, params.SessionId, params.AuthorId, RoleEditor); err != nil {
			return err
		}

		comment = Comment{
			Id:        uuid.NewString(),
			AuthorId:  params.AuthorId,
			Content:   params.Content,
			Anchor:    params.Anchor,
			Timecode:  params.Timecode,
			CreatedAt: s.now(),
		}
		if err := s.repo.SetComment(ctx, &sessionrepo.SetCommentParams{
			SessionId: params.SessionId,
			CommentId: comment.Id,
			AuthorId:  comment.AuthorId,
			Content:   comment.Content,
			Anchor:    comment.Anchor,
			Timecode:  comment.Timecode,
			CreatedAt: comment.CreatedAt,
		}); err != nil {
			return err
		}

		return s.publishEvent(ctx, params.SessionId, bus.EventCommentAdded, params.AuthorId, comment)
	})
	if err != nil {
		return Comment{}, err
	}

	return comment, nil
}

type ResolveCommentParams struct {
	SessionId string
	MemberId  string
	CommentId string
}

func (s *service) ResolveComment(ctx context.Context, params *ResolveCommentParams) error {
	return s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.checkRole(ctx, params.SessionId, params.MemberId, RoleEditor); err != nil {
			return err
		}

		if err := s.repo.UpdateCommentResolved(ctx, &sessionrepo.GetCommentParams{
			SessionId: params.SessionId,
			CommentId: params.CommentId,
		}, true); err != nil {
			if errors.Is(err, sessionrepo.ErrCommentNotFound) {
				return ErrCommentNotFound
			}

			return err
		}

		return s.publishEvent(ctx, params.SessionId, bus.EventCommentResolved, params.MemberId, CommentResolvedPayload{
			CommentId: params.CommentId,
		})
	})
}

type ApplyEditParams struct {
	SessionId   string
	AuthorId    string
	Section     string
	Description string
	Timecode    float64
}

// ApplyEdit records a content change notification. The edit itself lives
// in the project store; the session only carries the fact that it
// happened so every member refreshes the affected section.
func (s *service) ApplyEdit(ctx context.Context, params *ApplyEditParams) (Edit, error) {
	var edit Edit
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		if _, err := s.checkRole(ctx, params.SessionId, params.AuthorId, RoleEditor); err != nil {
			return err
		}

		edit = Edit{
			Id:          uuid.NewString(),
			AuthorId:    params.AuthorId,
			Section:     params.Section,
			Description: params.Description,
			Timecode:    params.Timecode,
			AppliedAt:   s.now(),
		}
		if err := s.repo.AddEdit(ctx, params.SessionId, &sessionrepo.Edit{
			Id:          edit.Id,
			AuthorId:    edit.AuthorId,
			Section:     edit.Section,
			Description: edit.Description,
			Timecode:    edit.Timecode,
			AppliedAt:   edit.AppliedAt,
		}); err != nil {
			return err
		}

		return s.publishEvent(ctx, params.SessionId, bus.EventEditApplied, params.AuthorId, edit)
	})
	if err != nil {
		return Edit{}, err
	}

	return edit, nil
}
