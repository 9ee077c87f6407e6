package session

import (
	"context"
	"errors"
	"math"

	"golang.org/x/exp/slices"

	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

// driftWindow keeps the last N drift samples for one member.
type driftWindow struct {
	samples []float64
	size    int
}

func newDriftWindow(size int) *driftWindow {
	return &driftWindow{size: size}
}

func (w *driftWindow) add(sample float64) {
	w.samples = append(w.samples, sample)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

func (w *driftWindow) avgAbs() float64 {
	if len(w.samples) == 0 {
		return 0
	}

	sum := 0.0
	for _, sample := range w.samples {
		sum += math.Abs(sample)
	}

	return sum / float64(len(w.samples))
}

func (a *actor) avgDrift(memberId string) float64 {
	if w, ok := a.drift[memberId]; ok {
		return w.avgAbs()
	}

	return 0
}

// qualityFor grades one member's sync health. The ladder starts from the
// delivery metrics; sustained drift then costs one tier per threshold
// band the window average has crossed, so a member hard-drifting on a
// clean link still reads degraded.
func (s *service) qualityFor(m NetworkMetrics, avgDrift float64) Quality {
	rank := 3
	switch {
	case m.LatencyMs > 100 || m.JitterMs > 10 || m.PacketLossPct > 1:
		rank = 0
	case m.LatencyMs > 75 || m.JitterMs > 5 || m.PacketLossPct > 0.5:
		rank = 1
	case m.LatencyMs > 50 || m.JitterMs > 3:
		rank = 2
	}

	switch {
	case avgDrift > s.cfg.HardDriftThreshold:
		rank -= 2
	case avgDrift > s.cfg.SoftDriftThreshold:
		rank--
	}
	if rank < 0 {
		rank = 0
	}

	return [...]Quality{QualityPoor, QualityFair, QualityGood, QualityExcellent}[rank]
}

type ReportPositionParams struct {
	SessionId        string
	MemberId         string
	ReportedPosition float64
	// ReportedAt is the member's send timestamp in unix milliseconds.
	ReportedAt int64
}

// ReportPosition evaluates one member's position against the
// authoritative clock extrapolated to the report timestamp. Reports
// older than the last accepted one come back DriftStale and leave no
// trace; everything else updates the member's liveness and its rolling
// drift window.
func (s *service) ReportPosition(ctx context.Context, params *ReportPositionParams) (DriftReport, error) {
	var report DriftReport
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: params.SessionId,
			MemberId:  params.MemberId,
		})
		if err != nil {
			if errors.Is(err, sessionrepo.ErrMemberNotFound) {
				return ErrMemberNotFound
			}

			return err
		}
		if !member.IsConnected {
			return ErrMemberNotFound
		}

		if member.ReportedAt > 0 && params.ReportedAt <= member.ReportedAt {
			report = DriftReport{Status: DriftStale}
			return nil
		}

		if err := s.repo.UpdateMemberReport(ctx, &sessionrepo.UpdateMemberReportParams{
			SessionId:        params.SessionId,
			MemberId:         params.MemberId,
			ReportedPosition: params.ReportedPosition,
			ReportedAt:       params.ReportedAt,
		}); err != nil {
			return err
		}

		// members outside the shared playback group stay live but are
		// never corrected
		if !member.IsListening {
			report = DriftReport{
				Status:   DriftInSync,
				Expected: params.ReportedPosition,
				Quality:  s.qualityFor(s.metrics.Sample(params.SessionId, params.MemberId), a.avgDrift(params.MemberId)),
			}
			return nil
		}

		clock, err := s.repo.GetClock(ctx, params.SessionId)
		if err != nil {
			return err
		}

		expected := clock.Position
		if clock.IsPlaying {
			expected += float64(params.ReportedAt-clock.UpdatedAt) / 1000.0
		}
		drift := params.ReportedPosition - expected

		w, ok := a.drift[params.MemberId]
		if !ok {
			w = newDriftWindow(s.cfg.DriftWindowSize)
			a.drift[params.MemberId] = w
		}
		w.add(drift)

		// boundary values belong to the lower band: a member exactly at
		// the soft threshold is still in sync
		status := DriftInSync
		switch {
		case math.Abs(drift) > s.cfg.HardDriftThreshold:
			status = DriftHard
		case math.Abs(drift) > s.cfg.SoftDriftThreshold:
			status = DriftSoft
		}

		report = DriftReport{
			Status:   status,
			Expected: expected,
			Drift:    drift,
			Quality:  s.qualityFor(s.metrics.Sample(params.SessionId, params.MemberId), w.avgAbs()),
		}

		return nil
	})

	return report, err
}

// sweepStale runs on the actor's goroutine. Connected listening members
// whose last report is older than the stale timeout are treated as gone
// and disconnected, which also triggers host reassignment when needed.
func (s *service) sweepStale(a *actor) {
	ctx := context.Background()

	if _, err := s.repo.GetSession(ctx, a.sessionId); err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			s.stopActor(a)
			return
		}
		s.logger.Warn("stale sweep failed", "session_id", a.sessionId, "error", err)
		return
	}

	memberIds, err := s.repo.GetMemberIds(ctx, a.sessionId)
	if err != nil {
		s.logger.Warn("stale sweep failed", "session_id", a.sessionId, "error", err)
		return
	}

	cutoff := s.now() - s.cfg.StaleReportTimeout.Milliseconds()
	for _, memberId := range memberIds {
		member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
			SessionId: a.sessionId,
			MemberId:  memberId,
		})
		if err != nil {
			continue
		}
		if !member.IsConnected || !member.IsListening {
			continue
		}
		// members that never reported are the transport's problem, not ours
		if member.ReportedAt == 0 || member.ReportedAt >= cutoff {
			continue
		}

		s.logger.Info("disconnecting stale member",
			"session_id", a.sessionId,
			"member_id", memberId,
		)
		if err := s.disconnectMember(ctx, a, memberId); err != nil {
			s.logger.Warn("failed to disconnect stale member",
				"session_id", a.sessionId,
				"member_id", memberId,
				"error", err,
			)
		}
	}
}

type SyncDiagnosticsParams struct {
	SessionId string
	MemberId  string
}

// SyncDiagnostics returns per-member sync health for the whole session,
// in join order. Restricted to the host and owners.
func (s *service) SyncDiagnostics(ctx context.Context, params *SyncDiagnosticsParams) ([]MemberDiagnostics, error) {
	var diags []MemberDiagnostics
	err := s.do(ctx, params.SessionId, func(a *actor) error {
		sess, err := s.repo.GetSession(ctx, params.SessionId)
		if err != nil {
			if errors.Is(err, sessionrepo.ErrSessionNotFound) {
				return ErrSessionNotFound
			}

			return err
		}

		if sess.HostId != params.MemberId {
			if _, err := s.checkRole(ctx, params.SessionId, params.MemberId, RoleOwner); err != nil {
				return err
			}
		}

		memberIds, err := s.repo.GetMemberIds(ctx, params.SessionId)
		if err != nil {
			return err
		}

		diags = make([]MemberDiagnostics, 0, len(memberIds))
		for _, memberId := range memberIds {
			member, err := s.repo.GetMember(ctx, &sessionrepo.GetMemberParams{
				SessionId: params.SessionId,
				MemberId:  memberId,
			})
			if err != nil {
				return err
			}
			if !member.IsConnected {
				continue
			}

			metrics := s.metrics.Sample(params.SessionId, memberId)
			avgDrift := a.avgDrift(memberId)

			diags = append(diags, MemberDiagnostics{
				MemberId:      memberId,
				Quality:       s.qualityFor(metrics, avgDrift),
				AvgDrift:      avgDrift,
				LatencyMs:     metrics.LatencyMs,
				JitterMs:      metrics.JitterMs,
				PacketLossPct: metrics.PacketLossPct,
				IsListening:   member.IsListening,
				LastReportAt:  member.ReportedAt,
			})
		}

		// worst quality first so the host sees who is struggling
		slices.SortStableFunc(diags, func(a, b MemberDiagnostics) int {
			return qualityRank(a.Quality) - qualityRank(b.Quality)
		})

		return nil
	})

	return diags, err
}

func qualityRank(q Quality) int {
	switch q {
	case QualityPoor:
		return 0
	case QualityFair:
		return 1
	case QualityGood:
		return 2
	default:
		return 3
	}
}
