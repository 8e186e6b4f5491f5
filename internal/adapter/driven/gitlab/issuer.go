// Package gitlab implements the TokenIssuer and TokenVerifier ports against a
// GitLab server.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenIssuer = (*Issuer)(nil)

const (
	signInPath  = "/users/sign_in"
	signOutPath = "/users/sign_out"

	maxBodyBytes = 2 << 20
)

// tokenSettingsPaths lists the personal access token settings page across
// GitLab versions, newest first.
var tokenSettingsPaths = []string{
	"/-/user_settings/personal_access_tokens",
	"/-/profile/personal_access_tokens",
	"/profile/personal_access_tokens",
}

// APIError describes a failed step of the token creation flow. Message is
// safe to show to users; it never contains the password.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Issuer mints personal access tokens by signing in to GitLab's web UI with
// the user's password and submitting the token settings form, the same way a
// browser does. Every call uses a fresh cookie jar and makes a single attempt.
type Issuer struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// NewIssuer creates an Issuer using http.DefaultTransport.
func NewIssuer(timeout time.Duration, logger *slog.Logger) *Issuer {
	return NewIssuerWithTransport(http.DefaultTransport, timeout, logger)
}

// NewIssuerWithTransport creates an Issuer with a custom transport.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewIssuerWithTransport(transport http.RoundTripper, timeout time.Duration, logger *slog.Logger) *Issuer {
	return &Issuer{transport: transport, timeout: timeout, logger: logger}
}

// CreatePersonalAccessToken signs in as req.Username, creates a token named
// req.TokenName with req.Scopes, and signs out again.
func (i *Issuer) CreatePersonalAccessToken(ctx context.Context, req model.TokenRequest) (model.Secret, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return model.Secret{}, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &session{
		client: &http.Client{Jar: jar, Timeout: i.timeout, Transport: i.transport},
		base:   strings.TrimRight(req.ServerURL, "/"),
	}

	if err := s.signIn(ctx, req.Username, req.Password); err != nil {
		return model.Secret{}, err
	}
	defer func() {
		if err := s.signOut(ctx); err != nil {
			i.logger.Debug("gitlab sign out failed", "server_url", s.base, "error", err)
		}
	}()

	token, err := s.createToken(ctx, req)
	if err != nil {
		return model.Secret{}, err
	}

	i.logger.Debug("gitlab personal access token created", "server_url", s.base, "username", req.Username, "token_name", req.TokenName)
	return token, nil
}

// session is one signed-in browser-like conversation with a GitLab server.
type session struct {
	client *http.Client
	base   string
	csrf   string
}

func (s *session) signIn(ctx context.Context, username string, password model.Secret) error {
	page, status, err := s.get(ctx, signInPath)
	if err != nil {
		return &APIError{Op: "sign in", Message: err.Error()}
	}
	if status != http.StatusOK {
		return &APIError{Op: "sign in", StatusCode: status, Message: "sign-in page unavailable"}
	}
	csrf := csrfToken(page)
	if csrf == "" {
		return &APIError{Op: "sign in", Message: "sign-in page has no authenticity token"}
	}

	form := url.Values{
		"authenticity_token": {csrf},
		"user[login]":        {username},
		"user[password]":     {password.Reveal()},
		"user[remember_me]":  {"0"},
	}
	resp, body, err := s.postForm(ctx, signInPath, form, nil)
	if err != nil {
		return &APIError{Op: "sign in", Message: err.Error()}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Op: "sign in", StatusCode: resp.StatusCode, Message: "sign-in request rejected"}
	}
	// A rejected login renders the sign-in form again.
	if strings.HasSuffix(resp.Request.URL.Path, signInPath) {
		msg := flashAlert(body)
		if msg == "" {
			msg = "invalid login or password"
		}
		return &APIError{Op: "sign in", StatusCode: http.StatusUnauthorized, Message: msg}
	}

	s.csrf = csrfToken(body)
	return nil
}

func (s *session) createToken(ctx context.Context, req model.TokenRequest) (model.Secret, error) {
	path, csrf, err := s.tokenSettingsPage(ctx)
	if err != nil {
		return model.Secret{}, err
	}

	form := url.Values{
		"authenticity_token":              {csrf},
		"personal_access_token[name]":     {req.TokenName},
		"personal_access_token[scopes][]": req.Scopes,
	}
	if !req.ExpiresAt.IsZero() {
		form.Set("personal_access_token[expires_at]", req.ExpiresAt.Format(time.DateOnly))
	} else {
		form.Set("personal_access_token[expires_at]", "")
	}

	headers := http.Header{
		"Accept":           {"application/json"},
		"X-CSRF-Token":     {csrf},
		"X-Requested-With": {"XMLHttpRequest"},
	}
	resp, body, err := s.postForm(ctx, path, form, headers)
	if err != nil {
		return model.Secret{}, &APIError{Op: "create token", Message: err.Error()}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return parseTokenJSON(resp.StatusCode, body)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return model.Secret{}, &APIError{Op: "create token", StatusCode: resp.StatusCode, Message: "token creation rejected"}
	}

	if token := createdTokenInput(body); token != "" {
		return model.NewSecret(token), nil
	}
	if msg := flashAlert(body); msg != "" {
		return model.Secret{}, &APIError{Op: "create token", StatusCode: resp.StatusCode, Message: msg}
	}
	return model.Secret{}, &APIError{Op: "create token", StatusCode: resp.StatusCode, Message: "response did not contain a token"}
}

// tokenSettingsPage finds the token settings page this server version serves
// and returns its path with a fresh authenticity token.
func (s *session) tokenSettingsPage(ctx context.Context) (string, string, error) {
	for _, path := range tokenSettingsPaths {
		page, status, err := s.get(ctx, path)
		if err != nil {
			return "", "", &APIError{Op: "open token settings", Message: err.Error()}
		}
		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			return "", "", &APIError{Op: "open token settings", StatusCode: status, Message: "token settings page unavailable"}
		}
		csrf := csrfToken(page)
		if csrf == "" {
			csrf = s.csrf
		}
		if csrf == "" {
			return "", "", &APIError{Op: "open token settings", Message: "token settings page has no authenticity token"}
		}
		return path, csrf, nil
	}
	return "", "", &APIError{Op: "open token settings", StatusCode: http.StatusNotFound, Message: "token settings page not found"}
}

func (s *session) signOut(ctx context.Context) error {
	form := url.Values{"_method": {"delete"}, "authenticity_token": {s.csrf}}
	_, _, err := s.postForm(ctx, signOutPath, form, nil)
	return err
}

func (s *session) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "text/html")

	resp, body, err := s.do(req)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (s *session) postForm(ctx context.Context, path string, form url.Values, headers http.Header) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html")
	}

	return s.do(req)
}

func (s *session) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error repeats the full URL; the operation name is enough context.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	return resp, body, nil
}

// tokenResponse is the JSON body newer GitLab versions return from the token
// settings form.
type tokenResponse struct {
	NewToken string          `json:"new_token"`
	Errors   json.RawMessage `json:"errors"`
	Message  string          `json:"message"`
}

func parseTokenJSON(status int, body []byte) (model.Secret, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return model.Secret{}, &APIError{Op: "create token", StatusCode: status, Message: "malformed JSON response"}
	}
	if status < http.StatusBadRequest && tr.NewToken != "" {
		return model.NewSecret(tr.NewToken), nil
	}

	msg := tr.Message
	if msg == "" {
		msg = joinErrors(tr.Errors)
	}
	if msg == "" {
		msg = "response did not contain a token"
	}
	return model.Secret{}, &APIError{Op: "create token", StatusCode: status, Message: msg}
}

// joinErrors flattens GitLab's "errors" field, which is either a list of
// strings or a single string.
func joinErrors(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}
