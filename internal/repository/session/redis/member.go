package redis

import (
	"context"
	"fmt"

	"github.com/tabsync/server/internal/repository/session"
)

func (r repo) getMemberKey(sessionId, memberId string) string {
	return "session:" + sessionId + ":member:" + memberId
}

func (r repo) getMemberListKey(sessionId string) string {
	return "session:" + sessionId + ":memberlist"
}

// SetMember writes the member hash and appends the member id to the
// session's join-ordered list. List position doubles as tenure: the
// lowest score is the longest-standing member.
func (r repo) SetMember(ctx context.Context, params *session.SetMemberParams) error {
	member := session.Member{
		DisplayName:      params.DisplayName,
		Role:             params.Role,
		IsConnected:      params.IsConnected,
		IsListening:      params.IsListening,
		ReportedPosition: params.ReportedPosition,
		ReportedAt:       params.ReportedAt,
		JoinedAt:         params.JoinedAt,
	}
	memberKey := r.getMemberKey(params.SessionId, params.MemberId)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, memberKey, member)
	pipe.Expire(ctx, memberKey, r.expireDuration)
	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set member: %w", err)
	}

	memberListKey := r.getMemberListKey(params.SessionId)
	if _, err := r.addWithIncrement(ctx, memberListKey, params.MemberId); err != nil {
		return fmt.Errorf("failed to add member to list: %w", err)
	}
	r.rc.Expire(ctx, memberListKey, r.expireDuration)

	return nil
}

func (r repo) GetMember(ctx context.Context, params *session.GetMemberParams) (session.Member, error) {
	memberKey := r.getMemberKey(params.SessionId, params.MemberId)
	if r.rc.Exists(ctx, memberKey).Val() == 0 {
		return session.Member{}, session.ErrMemberNotFound
	}

	var member session.Member
	if err := r.rc.HGetAll(ctx, memberKey).Scan(&member); err != nil {
		return session.Member{}, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// GetMemberIds returns member ids in join order.
func (r repo) GetMemberIds(ctx context.Context, sessionId string) ([]string, error) {
	memberIds, err := r.rc.ZRange(ctx, r.getMemberListKey(sessionId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	return memberIds, nil
}

func (r repo) UpdateMemberRole(ctx context.Context, sessionId, memberId, role string) error {
	key := r.getMemberKey(sessionId, memberId)
	if r.rc.Exists(ctx, key).Val() == 0 {
		return session.ErrMemberNotFound
	}

	return r.rc.HSet(ctx, key, "role", role).Err()
}

func (r repo) UpdateMemberIsConnected(ctx context.Context, sessionId, memberId string, isConnected bool) error {
	key := r.getMemberKey(sessionId, memberId)
	if r.rc.Exists(ctx, key).Val() == 0 {
		return session.ErrMemberNotFound
	}

	return r.rc.HSet(ctx, key, "is_connected", isConnected).Err()
}

func (r repo) UpdateMemberIsListening(ctx context.Context, sessionId, memberId string, isListening bool) error {
	key := r.getMemberKey(sessionId, memberId)
	if r.rc.Exists(ctx, key).Val() == 0 {
		return session.ErrMemberNotFound
	}

	return r.rc.HSet(ctx, key, "is_listening", isListening).Err()
}

func (r repo) UpdateMemberReport(ctx context.Context, params *session.UpdateMemberReportParams) error {
	key := r.getMemberKey(params.SessionId, params.MemberId)
	if r.rc.Exists(ctx, key).Val() == 0 {
		return session.ErrMemberNotFound
	}

	return r.rc.HSet(ctx, key,
		"reported_position", params.ReportedPosition,
		"reported_at", params.ReportedAt,
	).Err()
}
