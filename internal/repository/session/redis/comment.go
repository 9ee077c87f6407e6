package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabsync/server/internal/repository/session"
)

func (r repo) getCommentKey(sessionId, commentId string) string {
	return "session:" + sessionId + ":comment:" + commentId
}

func (r repo) getCommentListKey(sessionId string) string {
	return "session:" + sessionId + ":commentlist"
}

func (r repo) getEditsKey(sessionId string) string {
	return "session:" + sessionId + ":edits"
}

func (r repo) SetComment(ctx context.Context, params *session.SetCommentParams) error {
	comment := session.Comment{
		AuthorId:  params.AuthorId,
		Content:   params.Content,
		Anchor:    params.Anchor,
		Timecode:  params.Timecode,
		Resolved:  false,
		CreatedAt: params.CreatedAt,
	}
	commentKey := r.getCommentKey(params.SessionId, params.CommentId)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, commentKey, comment)
	pipe.Expire(ctx, commentKey, r.expireDuration)
	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set comment: %w", err)
	}

	commentListKey := r.getCommentListKey(params.SessionId)
	if _, err := r.addWithIncrement(ctx, commentListKey, params.CommentId); err != nil {
		return fmt.Errorf("failed to add comment to list: %w", err)
	}
	r.rc.Expire(ctx, commentListKey, r.expireDuration)

	return nil
}

func (r repo) GetComment(ctx context.Context, params *session.GetCommentParams) (session.Comment, error) {
	commentKey := r.getCommentKey(params.SessionId, params.CommentId)
	if r.rc.Exists(ctx, commentKey).Val() == 0 {
		return session.Comment{}, session.ErrCommentNotFound
	}

	var comment session.Comment
	if err := r.rc.HGetAll(ctx, commentKey).Scan(&comment); err != nil {
		return session.Comment{}, fmt.Errorf("failed to get comment: %w", err)
	}

	return comment, nil
}

// GetCommentIds returns comment ids in creation order. Comments are never
// reordered or removed, only resolved.
func (r repo) GetCommentIds(ctx context.Context, sessionId string) ([]string, error) {
	commentIds, err := r.rc.ZRange(ctx, r.getCommentListKey(sessionId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get comment ids: %w", err)
	}

	return commentIds, nil
}

func (r repo) UpdateCommentResolved(ctx context.Context, params *session.GetCommentParams, resolved bool) error {
	commentKey := r.getCommentKey(params.SessionId, params.CommentId)
	if r.rc.Exists(ctx, commentKey).Val() == 0 {
		return session.ErrCommentNotFound
	}

	return r.rc.HSet(ctx, commentKey, "resolved", resolved).Err()
}

func (r repo) AddEdit(ctx context.Context, sessionId string, edit *session.Edit) error {
	data, err := json.Marshal(edit)
	if err != nil {
		return fmt.Errorf("failed to marshal edit: %w", err)
	}

	editsKey := r.getEditsKey(sessionId)
	if err := r.rc.RPush(ctx, editsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to add edit: %w", err)
	}
	r.rc.Expire(ctx, editsKey, r.expireDuration)

	return nil
}

func (r repo) GetEdits(ctx context.Context, sessionId string) ([]session.Edit, error) {
	entries, err := r.rc.LRange(ctx, r.getEditsKey(sessionId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get edits: %w", err)
	}

	edits := make([]session.Edit, 0, len(entries))
	for _, entry := range entries {
		var edit session.Edit
		if err := json.Unmarshal([]byte(entry), &edit); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edit: %w", err)
		}

		edits = append(edits, edit)
	}

	return edits, nil
}
