package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GetCode returns the current code of the given type. Both code types
	// are visible to community admins only.
	GetCode(ctx context.Context, actorID snowflake.ID, communityID string, codeType string) (*CodeResponse, error)
	// RotateCode replaces the code value; the previous value becomes
	// immediately unredeemable.
	RotateCode(ctx context.Context, actorID snowflake.ID, communityID string, codeType string) (*CodeResponse, error)
	// Resolve maps a redeemed code to its community and granted role.
	Resolve(ctx context.Context, code string) (*InviteCode, error)
}

type CodeResponse struct {
	CommunityID string `json:"community_id"`
	Type        string `json:"type"`
	Code        string `json:"code"`
}

var (
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidCodeType = errors.New("invalid_code_type")
	ErrForbidden       = errors.New("forbidden")
)
