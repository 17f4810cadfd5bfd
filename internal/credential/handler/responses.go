package handler

import (
	"time"

	"tempauth/internal/audit"
	"tempauth/internal/credential/models"
	"tempauth/internal/credential/service"
)

// CredentialResponse is the secret-free view served by every read path.
// One-time disclosure of the secret happens exclusively through
// CreateCredentialResponse.
type CredentialResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Status        string     `json:"status"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
}

type CreateCredentialResponse struct {
	Credential      *CredentialResponse `json:"credential"`
	Secret          string              `json:"secret"`
	ProvisioningURI string              `json:"provisioning_uri"`
}

type CredentialListResponse struct {
	Credentials []*CredentialResponse `json:"credentials"`
	Count       int                   `json:"count"`
}

type VerifyCodeResponse struct {
	CredentialID string `json:"credential_id"`
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason,omitempty"`
}

type AuditEventResponse struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	SubjectID string    `json:"subject_id"`
	Details   string    `json:"details,omitempty"`
}

type AuditEventListResponse struct {
	Events []*AuditEventResponse `json:"events"`
	Count  int                   `json:"count"`
}

// Response mapping functions - convert domain objects to HTTP DTOs

func toCredentialResponse(c *models.Credential) *CredentialResponse {
	return &CredentialResponse{
		ID:            c.ID.String(),
		Username:      c.Username,
		Email:         c.Email,
		CreatedAt:     c.CreatedAt,
		ExpiresAt:     c.ExpiresAt,
		Status:        string(c.Status),
		RevokedAt:     c.RevokedAt,
		RevokedReason: c.RevokedReason,
	}
}

func toCreateResponse(issued *service.IssuedCredential) *CreateCredentialResponse {
	return &CreateCredentialResponse{
		Credential:      toCredentialResponse(issued.Credential),
		Secret:          issued.Secret,
		ProvisioningURI: issued.ProvisioningURI,
	}
}

func toListResponse(creds []*models.Credential) *CredentialListResponse {
	out := make([]*CredentialResponse, len(creds))
	for i, c := range creds {
		out[i] = toCredentialResponse(c)
	}
	return &CredentialListResponse{Credentials: out, Count: len(out)}
}

func toVerifyResponse(result *service.VerifyResult) *VerifyCodeResponse {
	return &VerifyCodeResponse{
		CredentialID: result.CredentialID.String(),
		Valid:        result.Valid,
		Reason:       result.Reason,
	}
}

func toAuditListResponse(events []audit.Event) *AuditEventListResponse {
	out := make([]*AuditEventResponse, len(events))
	for i, e := range events {
		out[i] = &AuditEventResponse{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Action:    string(e.Action),
			SubjectID: e.SubjectID.String(),
			Details:   e.Details,
		}
	}
	return &AuditEventListResponse{Events: out, Count: len(out)}
}
