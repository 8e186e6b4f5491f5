package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitlabpat/internal/application"
	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

const maxRequestBody = 1 << 20

// TokenCreator mints GitLab personal access tokens and stores them as
// credentials.
type TokenCreator interface {
	FillCredentialsItems(ctx context.Context, serverURL, credentialsID string) ([]model.ListBoxOption, error)
	CreateTokenByCredentials(ctx context.Context, serverURL, credentialsID string) (model.FormValidation, error)
	CreateTokenByPassword(ctx context.Context, serverURL, username string, password model.Secret) (model.FormValidation, error)
}

// CredentialManager adds and lists stored credentials and their domains.
type CredentialManager interface {
	AddUsernamePassword(ctx context.Context, store string, in application.CredentialInput) (model.Credential, error)
	List(ctx context.Context) ([]model.Credential, error)
	ListDomains(ctx context.Context) ([]model.Domain, error)
}

// Authenticator resolves API keys to principals.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey model.Secret) (model.Principal, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	tokens      TokenCreator
	credentials CredentialManager
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(tokens TokenCreator, credentials CredentialManager, logger *slog.Logger) *Handler {
	return &Handler{
		tokens:      tokens,
		credentials: credentials,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with authentication, logging and recovery middleware.
func NewServeMux(h *Handler, auth Authenticator, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/whoami", h.WhoAmI)

	mux.HandleFunc("GET /api/v1/token-creator/credentials", h.FillCredentialsItems)
	mux.HandleFunc("POST /api/v1/token-creator/by-credentials", h.CreateTokenByCredentials)
	mux.HandleFunc("POST /api/v1/token-creator/by-password", h.CreateTokenByPassword)

	mux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	mux.HandleFunc("POST /api/v1/credentials", h.AddCredential)
	mux.HandleFunc("GET /api/v1/domains", h.ListDomains)

	// Request order is logging, recovery, auth, then mux: recovery also
	// covers auth, and logging sees the status recovery writes.
	wrapped := authMiddleware(auth, logger, mux)
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// WhoAmI returns the principal the request authenticated as.
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p := application.PrincipalFrom(r.Context())
	if p.IsAnonymous() {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, PrincipalResponse{Name: p.Name, Admin: p.Admin})
}

// FillCredentialsItems returns the credentials selectable for a server.
func (h *Handler) FillCredentialsItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	options, err := h.tokens.FillCredentialsItems(r.Context(), q.Get("server_url"), q.Get("credentials_id"))
	if err != nil {
		h.writeServiceError(w, r, "failed to list credentials items", err)
		return
	}

	resp := make([]OptionResponse, 0, len(options))
	for _, o := range options {
		resp = append(resp, OptionResponse{Name: o.Name, Value: o.Value})
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateTokenByCredentials mints a token from a stored credential.
func (h *Handler) CreateTokenByCredentials(w http.ResponseWriter, r *http.Request) {
	var req TokenByCredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.tokens.CreateTokenByCredentials(r.Context(), req.ServerURL, req.CredentialsID)
	if err != nil {
		h.writeServiceError(w, r, "failed to create token by credentials", err)
		return
	}

	writeValidation(w, result)
}

// CreateTokenByPassword mints a token from a username and password.
func (h *Handler) CreateTokenByPassword(w http.ResponseWriter, r *http.Request) {
	var req TokenByPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.tokens.CreateTokenByPassword(r.Context(), req.ServerURL, req.Username, model.NewSecret(req.Password))
	if err != nil {
		h.writeServiceError(w, r, "failed to create token by password", err)
		return
	}

	writeValidation(w, result)
}

// ListCredentials returns the credentials visible to the caller.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to list credentials", err)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddCredential stores a username/password credential.
func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	var req AddCredentialRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cred, err := h.credentials.AddUsernamePassword(r.Context(), req.Store, application.CredentialInput{
		ID:          req.ID,
		Username:    req.Username,
		Password:    model.NewSecret(req.Password),
		Description: req.Description,
		Domain:      req.Domain,
		Scope:       model.CredentialScope(req.Scope),
	})
	if err != nil {
		h.writeServiceError(w, r, "failed to add credential", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialResponse(cred))
}

// ListDomains returns the credential domains visible to the caller.
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.credentials.ListDomains(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to list domains", err)
		return
	}

	resp := make([]DomainResponse, 0, len(domains))
	for _, d := range domains {
		resp = append(resp, toDomainResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeValidation maps a FormValidation to 200 or 422.
func writeValidation(w http.ResponseWriter, v model.FormValidation) {
	status := http.StatusOK
	if !v.IsOK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toValidationResponse(v))
}

// writeServiceError maps application and port errors to HTTP status codes.
// Unexpected errors are logged and reported as 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, application.ErrUnauthenticated):
		writeUnauthorized(w)
	case errors.Is(err, application.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, application.ErrInvalidCredential):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, driven.ErrCredentialExists):
		writeError(w, http.StatusConflict, "credential already exists")
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
	default:
		h.logger.Error(msg, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 and returning
// false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
