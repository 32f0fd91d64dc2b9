package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create provisions a tenant with its enrollment codes and a default
	// welcome community. Guarded by the platform admin secret.
	Create(ctx context.Context, req CreateInstitutionRequest) (*InstitutionResponse, error)
	Get(ctx context.Context, id string) (*InstitutionResponse, error)
	// JoinByCode enrolls the caller into the institution and its welcome
	// community. Admin codes additionally mark the user institution admin.
	JoinByCode(ctx context.Context, userID snowflake.ID, code string) (*JoinInstitutionResult, error)
	// ListCodes is restricted to institution admins.
	ListCodes(ctx context.Context, actorID snowflake.ID, institutionID string) ([]InstitutionCode, error)
}

type CreateInstitutionRequest struct {
	Name   string
	Image  string
	Secret string
}

type InstitutionResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

type JoinInstitutionResult struct {
	InstitutionID      string `json:"institution_id"`
	IsInstitutionAdmin bool   `json:"is_institution_admin"`
}

var (
	ErrInvalidName            = errors.New("invalid_name")
	ErrInvalidSecret          = errors.New("invalid_secret")
	ErrInstitutionNotFound    = errors.New("institution_not_found")
	ErrInvalidInstitutionCode = errors.New("invalid_institution_code")
	ErrForbidden              = errors.New("forbidden")
	ErrAlreadyEnrolled        = errors.New("already_enrolled")
)
