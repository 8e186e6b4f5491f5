package driven

import (
	"context"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// TokenIssuer defines the driven port that mints personal access tokens on a
// GitLab server. Implementations make a single attempt per call.
type TokenIssuer interface {
	CreatePersonalAccessToken(ctx context.Context, req model.TokenRequest) (model.Secret, error)
}

// TokenVerifier checks a freshly minted token against the server it came from.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, serverURL string, token model.Secret) (model.TokenInfo, error)
}
