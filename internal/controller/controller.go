package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tabsync/server/internal/bus"
	"github.com/tabsync/server/internal/service/session"
	"github.com/tabsync/server/pkg/randstr"
	"github.com/tabsync/server/pkg/validator"
	"github.com/tabsync/server/pkg/wsrouter"
)

type iSessionService interface {
	CreateSessionToken(context.Context, *session.CreateSessionTokenParams) (string, error)
	JoinSessionToken(context.Context, *session.JoinSessionTokenParams) (string, error)
	CreateSession(context.Context, *session.CreateSessionParams) (session.CreateSessionResponse, error)
	JoinSession(context.Context, *session.JoinSessionParams) (session.JoinSessionResponse, error)
	LeaveSession(context.Context, *session.LeaveSessionParams) error
	ConnectMember(context.Context, *session.ConnectMemberParams) error
	Subscribe(ctx context.Context, sessionId string, fromSeq int64) (*bus.Subscription, error)
	Unsubscribe(sub *bus.Subscription)
	Play(context.Context, *session.PlayParams) (session.ClockState, error)
	Pause(context.Context, *session.PauseParams) (session.ClockState, error)
	Seek(context.Context, *session.SeekParams) (session.ClockState, error)
	TransferHost(context.Context, *session.TransferHostParams) error
	SetRole(context.Context, *session.SetRoleParams) error
	SetListening(context.Context, *session.SetListeningParams) error
	ReportPosition(context.Context, *session.ReportPositionParams) (session.DriftReport, error)
	SyncDiagnostics(context.Context, *session.SyncDiagnosticsParams) ([]session.MemberDiagnostics, error)
	AddComment(context.Context, *session.AddCommentParams) (session.Comment, error)
	ResolveComment(context.Context, *session.ResolveCommentParams) error
	ApplyEdit(context.Context, *session.ApplyEditParams) (session.Edit, error)
}

type controller struct {
	sessionService iSessionService
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	wsmux          *wsrouter.WSRouter
	randstr        *randstr.Generator
	logger         *slog.Logger
}

func NewController(sessionService iSessionService, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessionService: sessionService,
		validate:       validator.NewValidator(),
		randstr:        randstr.New([]byte("abcdefghijklmnopqrstuvwxyz0123456789")),
		logger:         logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
