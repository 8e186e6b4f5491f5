package gitlab

import (
	"context"
	"fmt"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
	"github.com/ericfisherdev/gitlabpat/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenVerifier = (*Verifier)(nil)

// Verifier checks freshly minted tokens against the GitLab REST API.
type Verifier struct {
	httpClient *http.Client
}

// NewVerifier creates a Verifier. A nil httpClient uses http.DefaultClient.
func NewVerifier(httpClient *http.Client) *Verifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Verifier{httpClient: httpClient}
}

// VerifyToken reports which user token belongs to and the scopes it carries.
func (v *Verifier) VerifyToken(ctx context.Context, serverURL string, token model.Secret) (model.TokenInfo, error) {
	client, err := gl.NewClient(token.Reveal(),
		gl.WithBaseURL(serverURL),
		gl.WithHTTPClient(v.httpClient),
		gl.WithoutRetries(),
	)
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("create gitlab client: %w", err)
	}

	user, _, err := client.Users.CurrentUser(gl.WithContext(ctx))
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("get current user: %w", err)
	}

	pat, _, err := client.PersonalAccessTokens.GetSinglePersonalAccessToken(gl.WithContext(ctx))
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("get token details: %w", err)
	}

	email := user.Email
	if email == "" {
		email = user.PublicEmail
	}

	return model.TokenInfo{
		Username: user.Username,
		Email:    email,
		Name:     pat.Name,
		Scopes:   pat.Scopes,
		Active:   pat.Active,
	}, nil
}
