package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tabsync/server/internal/bus"
	sessionrepo "github.com/tabsync/server/internal/repository/session"
)

type iSessionRepo interface {
	// session
	SetSession(context.Context, *sessionrepo.SetSessionParams) error
	GetSession(context.Context, string) (sessionrepo.Session, error)
	GetSessionIdByProjectId(context.Context, string) (string, error)
	UpdateSessionHost(ctx context.Context, sessionId, hostId string) error
	RemoveSession(context.Context, string) error
	// member
	SetMember(context.Context, *sessionrepo.SetMemberParams) error
	GetMember(context.Context, *sessionrepo.GetMemberParams) (sessionrepo.Member, error)
	GetMemberIds(context.Context, string) ([]string, error)
	UpdateMemberRole(ctx context.Context, sessionId, memberId, role string) error
	UpdateMemberIsConnected(ctx context.Context, sessionId, memberId string, isConnected bool) error
	UpdateMemberIsListening(ctx context.Context, sessionId, memberId string, isListening bool) error
	UpdateMemberReport(context.Context, *sessionrepo.UpdateMemberReportParams) error
	// clock
	SetClock(context.Context, *sessionrepo.SetClockParams) error
	GetClock(context.Context, string) (sessionrepo.Clock, error)
	UpdateClock(context.Context, *sessionrepo.UpdateClockParams) error
	// comments & edits
	SetComment(context.Context, *sessionrepo.SetCommentParams) error
	GetComment(context.Context, *sessionrepo.GetCommentParams) (sessionrepo.Comment, error)
	GetCommentIds(context.Context, string) ([]string, error)
	UpdateCommentResolved(ctx context.Context, params *sessionrepo.GetCommentParams, resolved bool) error
	AddEdit(ctx context.Context, sessionId string, edit *sessionrepo.Edit) error
	GetEdits(ctx context.Context, sessionId string) ([]sessionrepo.Edit, error)
	// event log cursor
	GetLastSequence(ctx context.Context, sessionId string) (int64, error)
	// connect tokens
	SetCreateSession(context.Context, *sessionrepo.SetCreateSessionParams) error
	GetCreateSession(ctx context.Context, token string) (sessionrepo.CreateSession, error)
	SetJoinSession(context.Context, *sessionrepo.SetJoinSessionParams) error
	GetJoinSession(ctx context.Context, token string) (sessionrepo.JoinSession, error)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, memberId string) error
	RemoveByConn(conn *websocket.Conn) error
	RemoveByMemberId(memberId string) (*websocket.Conn, error)
	GetMemberId(conn *websocket.Conn) (string, error)
	GetConn(memberId string) (*websocket.Conn, error)
}

type iEventBus interface {
	Publish(ctx context.Context, event bus.Event) (int64, error)
	Subscribe(ctx context.Context, sessionId string, fromSeq int64) (*bus.Subscription, error)
	Unsubscribe(sub *bus.Subscription)
	CloseSession(sessionId string)
}

// NetworkMetrics is a snapshot of the delivery channel's health for one
// member, supplied by the transport collaborator.
type NetworkMetrics struct {
	LatencyMs     float64
	JitterMs      float64
	PacketLossPct float64
}

type MetricsSource interface {
	Sample(sessionId, memberId string) NetworkMetrics
}

// NopMetricsSource reports a perfect network. Quality then derives from
// drift alone.
type NopMetricsSource struct{}

func (NopMetricsSource) Sample(_, _ string) NetworkMetrics { return NetworkMetrics{} }

type Config struct {
	MembersLimit       int
	SoftDriftThreshold float64 // seconds
	HardDriftThreshold float64 // seconds
	StaleReportTimeout time.Duration
	DestroyGracePeriod time.Duration
	DriftWindowSize    int
}

func (cfg *Config) applyDefaults() {
	if cfg.MembersLimit <= 0 {
		cfg.MembersLimit = 9
	}
	if cfg.SoftDriftThreshold <= 0 {
		cfg.SoftDriftThreshold = 0.3
	}
	if cfg.HardDriftThreshold <= 0 {
		cfg.HardDriftThreshold = 1.0
	}
	if cfg.StaleReportTimeout <= 0 {
		cfg.StaleReportTimeout = 5 * time.Second
	}
	if cfg.DestroyGracePeriod <= 0 {
		cfg.DestroyGracePeriod = 30 * time.Second
	}
	if cfg.DriftWindowSize <= 0 {
		cfg.DriftWindowSize = 10
	}
}

type service struct {
	repo     iSessionRepo
	connRepo iConnRepo
	bus      iEventBus
	metrics  MetricsSource
	clock    clockwork.Clock
	logger   *slog.Logger
	cfg      Config

	actors *actorSet
}

func NewService(repo iSessionRepo, connRepo iConnRepo, eventBus iEventBus, metrics MetricsSource, clock clockwork.Clock, logger *slog.Logger, cfg Config) *service {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = NopMetricsSource{}
	}

	s := &service{
		repo:     repo,
		connRepo: connRepo,
		bus:      eventBus,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
	s.actors = newActorSet(s)

	return s
}

func (s *service) now() int64 {
	return s.clock.Now().UnixMilli()
}
