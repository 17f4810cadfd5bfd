package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tempauth/internal/audit"
	"tempauth/internal/credential/models"
	"tempauth/internal/credential/service"
	id "tempauth/pkg/domain"
	dErrors "tempauth/pkg/domain-errors"
	"tempauth/pkg/platform/httputil"
	request "tempauth/pkg/platform/middleware/request"
)

// Service defines the credential operations the handlers expose.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*service.IssuedCredential, error)
	Get(ctx context.Context, credID id.CredentialID) (*models.Credential, error)
	ListActive(ctx context.Context) ([]*models.Credential, error)
	Revoke(ctx context.Context, credID id.CredentialID, reason string) (*models.Credential, error)
	VerifyCode(ctx context.Context, cmd service.VerifyCommand) (*service.VerifyResult, error)
	AuditEvents(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleCreateCredential)
	r.Get("/credentials", h.HandleListCredentials)
	r.Get("/credentials/{id}", h.HandleGetCredential)
	r.Post("/credentials/{id}/revoke", h.HandleRevokeCredential)
	r.Post("/verify", h.HandleVerifyCode)
	r.Get("/audit-events", h.HandleListAuditEvents)
}

// HandleCreateCredential mints a credential. The response is the only place
// the TOTP secret appears in cleartext.
func (h *Handler) HandleCreateCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	issued, err := h.service.Create(ctx, req.ToCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "create credential failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toCreateResponse(issued))
}

// HandleGetCredential returns one credential without its secret.
func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}

	cred, err := h.service.Get(ctx, credID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get credential failed", "error", err, "request_id", requestID, "credential_id", credID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

// HandleListCredentials returns all active credentials, oldest first.
func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	creds, err := h.service.ListActive(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list credentials failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toListResponse(creds))
}

// HandleRevokeCredential revokes an active credential. The JSON body with a
// reason is optional.
func (h *Handler) HandleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}

	req, ok := h.decodeOptionalRevokeBody(w, r)
	if !ok {
		return
	}

	cred, err := h.service.Revoke(ctx, credID, req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "revoke credential failed", "error", err, "request_id", requestID, "credential_id", credID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(cred))
}

// HandleVerifyCode checks a TOTP code against a credential.
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyCodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cmd, err := req.ToCommand()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}

	result, err := h.service.VerifyCode(ctx, cmd)
	if err != nil {
		h.logger.ErrorContext(ctx, "verify code failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(result))
}

// HandleListAuditEvents returns ledger events filtered by the query string:
// from/to (RFC 3339), offset, limit, and order=desc.
func (h *Handler) HandleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	q, err := parseAuditQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.AuditEvents(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "list audit events failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAuditListResponse(events))
}

// decodeOptionalRevokeBody reads the revoke body, treating an absent body as
// an empty reason. A present but malformed body is still a client error.
func (h *Handler) decodeOptionalRevokeBody(w http.ResponseWriter, r *http.Request) (*RevokeCredentialRequest, bool) {
	req := &RevokeCredentialRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	req.Normalize()
	return req, true
}

func parseAuditQuery(r *http.Request) (audit.Query, error) {
	q := audit.Query{}
	values := r.URL.Query()

	if raw := values.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "from must be an RFC 3339 timestamp")
		}
		q.From = t
	}
	if raw := values.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "to must be an RFC 3339 timestamp")
		}
		q.To = t
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer")
		}
		q.Offset = n
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		q.Limit = n
	}
	q.Descending = values.Get("order") == "desc"

	return q, nil
}
