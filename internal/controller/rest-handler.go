package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tabsync/server/internal/service/session"
	"github.com/tabsync/server/pkg/rest"
)

type createSessionTokenRequest struct {
	ProjectId   string `json:"project_id" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=32"`
}

type connectTokenResponse struct {
	ConnectToken string `json:"connect_token"`
	MemberId     string `json:"member_id"`
}

func (c controller) createSessionToken(w http.ResponseWriter, r *http.Request) {
	var req createSessionTokenRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.InfoContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.InfoContext(r.Context(), "validation failed", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	memberId := uuid.NewString()
	connectToken, err := c.sessionService.CreateSessionToken(r.Context(), &session.CreateSessionTokenParams{
		ProjectId:   req.ProjectId,
		MemberId:    memberId,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to create session token", "error", err)
		rest.WriteJSON(w, statusForError(err), rest.Envelope{"error": err.Error()})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": connectTokenResponse{
		ConnectToken: connectToken,
		MemberId:     memberId,
	}})
}

type joinSessionTokenRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=32"`
	Role        string `json:"role" validate:"required,oneof=owner editor viewer"`
	// MemberId is set on reconnect to keep the member's tenure; empty for
	// a first join.
	MemberId string `json:"member_id"`
}

func (c controller) joinSessionToken(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "session-id")
	if sessionId == "" {
		rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "session not found"})
		return
	}

	var req joinSessionTokenRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.InfoContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.InfoContext(r.Context(), "validation failed", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	memberId := req.MemberId
	if memberId == "" {
		memberId = uuid.NewString()
	}

	connectToken, err := c.sessionService.JoinSessionToken(r.Context(), &session.JoinSessionTokenParams{
		SessionId:   sessionId,
		MemberId:    memberId,
		DisplayName: req.DisplayName,
		GrantedRole: req.Role,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to create join token", "error", err)
		rest.WriteJSON(w, statusForError(err), rest.Envelope{"error": err.Error()})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": connectTokenResponse{
		ConnectToken: connectToken,
		MemberId:     memberId,
	}})
}

func (c controller) syncDiagnostics(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "session-id")
	if sessionId == "" {
		rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "session not found"})
		return
	}

	memberId, err := c.mustHeader(r, "Member-Id")
	if err != nil {
		rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": err.Error()})
		return
	}

	diagnostics, err := c.sessionService.SyncDiagnostics(r.Context(), &session.SyncDiagnosticsParams{
		SessionId: sessionId,
		MemberId:  memberId,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to get diagnostics", "error", err)
		rest.WriteJSON(w, statusForError(err), rest.Envelope{"error": err.Error()})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": diagnostics})
}
