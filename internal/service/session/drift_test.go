package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMetricsSource returns fixed per-member network samples.
type stubMetricsSource struct {
	samples map[string]NetworkMetrics
}

func (s *stubMetricsSource) Sample(_, memberId string) NetworkMetrics {
	return s.samples[memberId]
}

func TestReportPositionDrift(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleViewer)
	e.join(t, created.SessionId, "member-c", "carol", RoleViewer)

	_, err := e.svc.Seek(ctx, &SeekParams{
		SessionId: created.SessionId,
		SenderId:  "member-a",
		Position:  40.0,
	})
	require.NoError(t, err)
	_, err = e.svc.Play(ctx, &PlayParams{SessionId: created.SessionId, SenderId: "member-a"})
	require.NoError(t, err)

	reportedAt := e.clock.Now().UnixMilli() + 1000

	// one second into playback the expected position is 41.0
	report, err := e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 40.2,
		ReportedAt:       reportedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftSoft, report.Status)
	assert.InDelta(t, 41.0, report.Expected, 1e-9)
	assert.InDelta(t, -0.8, report.Drift, 1e-9)

	report, err = e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-c",
		ReportedPosition: 38.0,
		ReportedAt:       reportedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftHard, report.Status, "drift beyond the hard threshold must force a snap")
	assert.InDelta(t, 41.0, report.Expected, 1e-9)

	// in sync while paused
	_, err = e.svc.Pause(ctx, &PauseParams{SessionId: created.SessionId, SenderId: "member-a"})
	require.NoError(t, err)
	clock, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)

	report, err = e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: clock.Clock.Position,
		ReportedAt:       reportedAt + 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftInSync, report.Status)
}

func TestDriftThresholdBoundaries(t *testing.T) {
	e := newTestEnv(t, Config{SoftDriftThreshold: 0.25, HardDriftThreshold: 1.0}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleViewer)

	_, err := e.svc.Seek(ctx, &SeekParams{
		SessionId: created.SessionId,
		SenderId:  "member-a",
		Position:  40.0,
	})
	require.NoError(t, err)
	_, err = e.svc.Play(ctx, &PlayParams{SessionId: created.SessionId, SenderId: "member-a"})
	require.NoError(t, err)

	base := e.clock.Now().UnixMilli()

	// a member exactly at the soft threshold is still in sync
	report, err := e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 40.75,
		ReportedAt:       base + 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftInSync, report.Status, "drift at the soft threshold must not trigger an advisory")
	assert.InDelta(t, -0.25, report.Drift, 1e-9)

	// a member exactly at the hard threshold gets an advisory, not a snap
	report, err = e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 41.0,
		ReportedAt:       base + 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftSoft, report.Status, "drift at the hard threshold must not force a snap")
	assert.InDelta(t, -1.0, report.Drift, 1e-9)
}

func TestReportPositionStale(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleViewer)

	reportedAt := e.clock.Now().UnixMilli()

	_, err := e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 0,
		ReportedAt:       reportedAt,
	})
	require.NoError(t, err)

	// an out-of-order report is dropped
	report, err := e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 99.0,
		ReportedAt:       reportedAt - 500,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftStale, report.Status)
}

func TestReportPositionNotListening(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleViewer)

	require.NoError(t, e.svc.SetListening(ctx, &SetListeningParams{
		SessionId:   created.SessionId,
		MemberId:    "member-b",
		IsListening: false,
	}))

	_, err := e.svc.Play(ctx, &PlayParams{SessionId: created.SessionId, SenderId: "member-a"})
	require.NoError(t, err)

	// wildly off position, but the member opted out of the shared clock
	report, err := e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 500.0,
		ReportedAt:       e.clock.Now().UnixMilli() + 100,
	})
	require.NoError(t, err)
	assert.Equal(t, DriftInSync, report.Status)
}

func TestQualityThresholds(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	tests := []struct {
		name     string
		metrics  NetworkMetrics
		avgDrift float64
		want     Quality
	}{
		{"perfect", NetworkMetrics{}, 0, QualityExcellent},
		{"moderate latency", NetworkMetrics{LatencyMs: 60}, 0, QualityGood},
		{"elevated jitter", NetworkMetrics{LatencyMs: 40, JitterMs: 7}, 0, QualityFair},
		{"high latency", NetworkMetrics{LatencyMs: 120}, 0, QualityPoor},
		{"lossy", NetworkMetrics{LatencyMs: 20, PacketLossPct: 2}, 0, QualityPoor},
		{"soft drift on a clean link", NetworkMetrics{}, 0.5, QualityGood},
		{"hard drift on a clean link", NetworkMetrics{}, 1.5, QualityFair},
		{"hard drift on a slow link", NetworkMetrics{LatencyMs: 60}, 1.5, QualityPoor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.svc.qualityFor(tt.metrics, tt.avgDrift))
		})
	}
}

func TestQualityDegradesWithSustainedDrift(t *testing.T) {
	e := newTestEnv(t, Config{}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleViewer)

	base := e.clock.Now().UnixMilli()

	// clock paused at zero, so every report lands far past the hard
	// threshold
	var report DriftReport
	for i := int64(1); i <= 5; i++ {
		var err error
		report, err = e.svc.ReportPosition(ctx, &ReportPositionParams{
			SessionId:        created.SessionId,
			MemberId:         "member-b",
			ReportedPosition: 500.0,
			ReportedAt:       base + i*1000,
		})
		require.NoError(t, err)
		require.Equal(t, DriftHard, report.Status)
	}
	assert.Equal(t, QualityFair, report.Quality, "sustained hard drift must pull quality down even on a clean link")

	// the host's diagnostics show the same degraded grade
	diags, err := e.svc.SyncDiagnostics(ctx, &SyncDiagnosticsParams{
		SessionId: created.SessionId,
		MemberId:  "member-a",
	})
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "member-b", diags[0].MemberId)
	assert.Equal(t, QualityFair, diags[0].Quality)
}

func TestSweepStaleDisconnects(t *testing.T) {
	e := newTestEnv(t, Config{StaleReportTimeout: 5 * time.Second}, nil)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)

	_, err := e.svc.ReportPosition(ctx, &ReportPositionParams{
		SessionId:        created.SessionId,
		MemberId:         "member-b",
		ReportedPosition: 0,
		ReportedAt:       e.clock.Now().UnixMilli(),
	})
	require.NoError(t, err)

	e.clock.Advance(6 * time.Second)

	require.NoError(t, e.svc.do(ctx, created.SessionId, func(a *actor) error {
		e.svc.sweepStale(a)
		return nil
	}))

	state, err := e.svc.GetSessionState(ctx, created.SessionId)
	require.NoError(t, err)
	assert.False(t, state.Members[1].IsConnected, "stale reporter must be disconnected")
	assert.True(t, state.Members[0].IsConnected, "members that never reported are left alone")
}

func TestSyncDiagnostics(t *testing.T) {
	metrics := &stubMetricsSource{samples: map[string]NetworkMetrics{
		"member-a": {LatencyMs: 20},
		"member-b": {LatencyMs: 120, JitterMs: 15},
		"member-c": {LatencyMs: 60},
	}}
	e := newTestEnv(t, Config{}, metrics)
	ctx := context.Background()

	created := e.createSession(t, "project-1", "member-a", "alice")
	e.join(t, created.SessionId, "member-b", "bob", RoleEditor)
	e.join(t, created.SessionId, "member-c", "carol", RoleViewer)

	// restricted to host and owners
	_, err := e.svc.SyncDiagnostics(ctx, &SyncDiagnosticsParams{
		SessionId: created.SessionId,
		MemberId:  "member-c",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	diags, err := e.svc.SyncDiagnostics(ctx, &SyncDiagnosticsParams{
		SessionId: created.SessionId,
		MemberId:  "member-a",
	})
	require.NoError(t, err)
	require.Len(t, diags, 3)
	assert.Equal(t, "member-b", diags[0].MemberId, "worst quality must come first")
	assert.Equal(t, QualityPoor, diags[0].Quality)
	assert.Equal(t, QualityGood, diags[1].Quality)
	assert.Equal(t, QualityExcellent, diags[2].Quality)
}
