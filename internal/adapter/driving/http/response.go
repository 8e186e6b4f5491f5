package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitlabpat/internal/application"
	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// PrincipalResponse describes the identity a request runs as.
type PrincipalResponse struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// ValidationResponse is the JSON representation of a FormValidation.
type ValidationResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OptionResponse is one entry of a credentials selection list.
type OptionResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TokenByCredentialsRequest is the JSON body for minting a token from a
// stored credential.
type TokenByCredentialsRequest struct {
	ServerURL     string `json:"server_url"`
	CredentialsID string `json:"credentials_id"`
}

// TokenByPasswordRequest is the JSON body for minting a token from a
// username and password.
type TokenByPasswordRequest struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// AddCredentialRequest is the JSON body for the add credential endpoint.
type AddCredentialRequest struct {
	Store       string `json:"store"`
	ID          string `json:"id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	Scope       string `json:"scope"`
}

// CredentialResponse is the JSON representation of a stored credential.
// Secrets are never included.
type CredentialResponse struct {
	ID          string `json:"id"`
	Store       string `json:"store"`
	Owner       string `json:"owner,omitempty"`
	DomainID    int64  `json:"domain_id,omitempty"`
	Kind        string `json:"kind"`
	Scope       string `json:"scope"`
	Description string `json:"description"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// SpecificationResponse is the JSON representation of a domain specification.
type SpecificationResponse struct {
	Kind     string `json:"kind"`
	Includes string `json:"includes"`
	Excludes string `json:"excludes"`
}

// DomainResponse is the JSON representation of a credential domain.
type DomainResponse struct {
	ID             int64                   `json:"id"`
	Store          string                  `json:"store"`
	Owner          string                  `json:"owner,omitempty"`
	Name           string                  `json:"name"`
	Description    string                  `json:"description"`
	AutoGenerated  bool                    `json:"auto_generated"`
	Specifications []SpecificationResponse `json:"specifications"`
	CreatedAt      string                  `json:"created_at"`
}

func storeOf(owner string) string {
	if owner == model.SystemStore {
		return application.StoreSystem
	}
	return application.StoreUser
}

// toValidationResponse converts a FormValidation to its JSON representation.
func toValidationResponse(v model.FormValidation) ValidationResponse {
	return ValidationResponse{Kind: string(v.Kind), Message: v.Message}
}

// toCredentialResponse converts a domain Credential to its JSON representation.
func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		ID:          c.ID,
		Store:       storeOf(c.Owner),
		Owner:       c.Owner,
		DomainID:    c.DomainID,
		Kind:        string(c.Kind),
		Scope:       string(c.Scope),
		Description: c.Description,
		Username:    c.Username,
		DisplayName: c.DisplayName(),
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// toDomainResponse converts a domain Domain to its JSON representation.
func toDomainResponse(d model.Domain) DomainResponse {
	specs := make([]SpecificationResponse, 0, len(d.Specifications))
	for _, s := range d.Specifications {
		specs = append(specs, SpecificationResponse{
			Kind:     string(s.Kind),
			Includes: s.Includes,
			Excludes: s.Excludes,
		})
	}

	return DomainResponse{
		ID:             d.ID,
		Store:          storeOf(d.Owner),
		Owner:          d.Owner,
		Name:           d.Name,
		Description:    d.Description,
		AutoGenerated:  d.AutoGenerated,
		Specifications: specs,
		CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
	}
}
