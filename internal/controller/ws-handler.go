package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/tabsync/server/internal/service/session"
)

func (c controller) handleAlive(_ context.Context, _ *websocket.Conn, _ json.RawMessage) error {
	return nil
}

func (c controller) handlePlay(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) error {
	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if _, err := c.sessionService.Play(ctx, &session.PlayParams{
		SessionId: sessionId,
		SenderId:  memberId,
	}); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	return nil
}

func (c controller) handlePause(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) error {
	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if _, err := c.sessionService.Pause(ctx, &session.PauseParams{
		SessionId: sessionId,
		SenderId:  memberId,
	}); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}

	return nil
}

type SeekInput struct {
	Position float64 `json:"position"`
}

func (c controller) handleSeek(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input SeekInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if _, err := c.sessionService.Seek(ctx, &session.SeekParams{
		SessionId: sessionId,
		SenderId:  memberId,
		Position:  input.Position,
	}); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	return nil
}

type TransferHostInput struct {
	NewHostId string `json:"new_host_id"`
}

func (c controller) handleTransferHost(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input TransferHostInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if err := c.sessionService.TransferHost(ctx, &session.TransferHostParams{
		SessionId: sessionId,
		SenderId:  memberId,
		NewHostId: input.NewHostId,
	}); err != nil {
		return fmt.Errorf("failed to transfer host: %w", err)
	}

	return nil
}

type SetRoleInput struct {
	MemberId string `json:"member_id"`
	Role     string `json:"role"`
}

func (c controller) handleSetRole(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input SetRoleInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if err := c.sessionService.SetRole(ctx, &session.SetRoleParams{
		SessionId: sessionId,
		ActorId:   memberId,
		TargetId:  input.MemberId,
		NewRole:   input.Role,
	}); err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}

	return nil
}

type SetListeningInput struct {
	IsListening bool `json:"is_listening"`
}

func (c controller) handleSetListening(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input SetListeningInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if err := c.sessionService.SetListening(ctx, &session.SetListeningParams{
		SessionId:   sessionId,
		MemberId:    memberId,
		IsListening: input.IsListening,
	}); err != nil {
		return fmt.Errorf("failed to set listening: %w", err)
	}

	return nil
}

type ReportPositionInput struct {
	Position   float64 `json:"position"`
	ReportedAt int64   `json:"reported_at"`
}

// handleReportPosition is the only handler with a direct response: the
// drift report is addressed to the reporting member, not the session.
func (c controller) handleReportPosition(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input ReportPositionInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	report, err := c.sessionService.ReportPosition(ctx, &session.ReportPositionParams{
		SessionId:        sessionId,
		MemberId:         memberId,
		ReportedPosition: input.Position,
		ReportedAt:       input.ReportedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to report position: %w", err)
	}

	if err := c.writeToConn(ctx, conn, &Output{
		Type:    "DRIFT_REPORT",
		Payload: report,
	}); err != nil {
		return fmt.Errorf("failed to write drift report: %w", err)
	}

	return nil
}

type AddCommentInput struct {
	Content  string  `json:"content"`
	Anchor   int     `json:"anchor"`
	Timecode float64 `json:"timecode"`
}

func (c controller) handleAddComment(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input AddCommentInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if input.Content == "" {
		return fmt.Errorf("validation error: %w", ErrValidationError)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if _, err := c.sessionService.AddComment(ctx, &session.AddCommentParams{
		SessionId: sessionId,
		AuthorId:  memberId,
		Content:   input.Content,
		Anchor:    input.Anchor,
		Timecode:  input.Timecode,
	}); err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

type ResolveCommentInput struct {
	CommentId string `json:"comment_id"`
}

func (c controller) handleResolveComment(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input ResolveCommentInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if input.CommentId == "" {
		return fmt.Errorf("validation error: %w", ErrValidationError)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if err := c.sessionService.ResolveComment(ctx, &session.ResolveCommentParams{
		SessionId: sessionId,
		MemberId:  memberId,
		CommentId: input.CommentId,
	}); err != nil {
		return fmt.Errorf("failed to resolve comment: %w", err)
	}

	return nil
}

type ApplyEditInput struct {
	Section     string  `json:"section"`
	Description string  `json:"description"`
	Timecode    float64 `json:"timecode"`
}

func (c controller) handleApplyEdit(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) error {
	var input ApplyEditInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if input.Section == "" {
		return fmt.Errorf("validation error: %w", ErrValidationError)
	}

	sessionId := c.getSessionIdFromCtx(ctx)
	memberId := c.getMemberIdFromCtx(ctx)

	if _, err := c.sessionService.ApplyEdit(ctx, &session.ApplyEditParams{
		SessionId:   sessionId,
		AuthorId:    memberId,
		Section:     input.Section,
		Description: input.Description,
		Timecode:    input.Timecode,
	}); err != nil {
		return fmt.Errorf("failed to apply edit: %w", err)
	}

	return nil
}
