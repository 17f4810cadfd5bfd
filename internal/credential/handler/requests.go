package handler

import (
	"strings"
	"time"

	"tempauth/internal/credential/models"
	"tempauth/internal/credential/service"
	id "tempauth/pkg/domain"
	dErrors "tempauth/pkg/domain-errors"
)

// HTTP Request DTOs - contain JSON tags for API serialization.
// These are converted to service commands before processing.

type CreateCredentialRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	DurationHours int    `json:"duration_hours"`
}

func (r *CreateCredentialRequest) Normalize() {
	if r == nil {
		return
	}
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

func (r *CreateCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if len(r.Username) > models.MaxUsernameLength {
		return dErrors.New(dErrors.CodeValidation, "username must be 128 characters or less")
	}
	if r.DurationHours <= 0 {
		return dErrors.New(dErrors.CodeValidation, "duration_hours must be positive")
	}
	return nil
}

// ToCommand converts the HTTP request to a service command.
func (r *CreateCredentialRequest) ToCommand() service.CreateCommand {
	return service.CreateCommand{
		Username: r.Username,
		Email:    r.Email,
		Duration: time.Duration(r.DurationHours) * time.Hour,
	}
}

// RevokeCredentialRequest carries the optional revocation reason. The request
// body itself is optional; an absent body means no reason.
type RevokeCredentialRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeCredentialRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

// VerifyCodeRequest identifies a credential by ID or username. Timestamp
// optionally pins the verification time (RFC3339); absent means the server
// clock.
type VerifyCodeRequest struct {
	CredentialID string `json:"credential_id"`
	Username     string `json:"username"`
	Code         string `json:"code"`
	Timestamp    string `json:"timestamp,omitempty"`
}

func (r *VerifyCodeRequest) Normalize() {
	if r == nil {
		return
	}
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Username = strings.TrimSpace(r.Username)
	r.Code = strings.TrimSpace(r.Code)
	r.Timestamp = strings.TrimSpace(r.Timestamp)
}

func (r *VerifyCodeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if r.CredentialID == "" && r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "credential_id or username is required")
	}
	return nil
}

// ToCommand converts the HTTP request to a service command.
// Returns an error if the credential ID or timestamp is present but malformed.
func (r *VerifyCodeRequest) ToCommand() (service.VerifyCommand, error) {
	cmd := service.VerifyCommand{
		Username: r.Username,
		Code:     r.Code,
	}
	if r.CredentialID != "" {
		credID, err := id.ParseCredentialID(r.CredentialID)
		if err != nil {
			return service.VerifyCommand{}, err
		}
		cmd.CredentialID = credID
	}
	if r.Timestamp != "" {
		at, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return service.VerifyCommand{}, dErrors.New(dErrors.CodeValidation, "timestamp must be RFC3339")
		}
		cmd.At = at
	}
	return cmd, nil
}
