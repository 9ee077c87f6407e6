package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComments(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)
	e.join(t, created.SessionId, "member-c", "carol", RoleViewer)

	// viewers cannot comment
	_, err := e.svc.AddComment(ctx, &AddCommentParams{
		SessionId: created.SessionId,
		AuthorId:  "member-c",
		Content:   "nice riff",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	comment, err := e.svc.AddComment(ctx, &AddCommentParams{
		SessionId: created.SessionId,
		AuthorId:  "member-b",
		Content:   "solo comes in late",
		Anchor:    12,
		Timecode:  41.5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, comment.Id)
	assert.False(t, comment.Resolved)

	require.NoError(t, e.svc.ResolveComment(ctx, &ResolveCommentParams{
		SessionId: created.SessionId,
		MemberId:  "member-a",
		CommentId: comment.Id,
	}))

	err = e.svc.ResolveComment(ctx, &ResolveCommentParams{
		SessionId: created.SessionId,
		MemberId:  "member-a",
		CommentId: "no-such-comment",
	})
	assert.ErrorIs(t, err, ErrCommentNotFound)

	state, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)
	require.Len(t, state.Comments, 1)
	assert.Equal(t, comment.Id, state.Comments[0].Id)
	assert.True(t, state.Comments[0].Resolved)
	assert.Equal(t, 12, state.Comments[0].Anchor)
}

func TestApplyEdit(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-c", "carol", RoleViewer)

	_, err := e.svc.ApplyEdit(ctx, &ApplyEditParams{
		SessionId: created.SessionId,
		AuthorId:  "member-c",
		Section:   "chorus",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	edit, err := e.svc.ApplyEdit(ctx, &ApplyEditParams{
		SessionId:   created.SessionId,
		AuthorId:    "member-a",
		Section:     "chorus",
		Description: "transpose up a step",
		Timecode:    63.0,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, edit.Id)

	state, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)
	require.Len(t, state.Edits, 1)
	assert.Equal(t, "chorus", state.Edits[0].Section)
	assert.Equal(t, "member-a", state.Edits[0].AuthorId)
}
