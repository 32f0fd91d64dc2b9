package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Destructive community actions. The closed set keeps dispatch a
// compile-time exhaustiveness concern.
type Action string

const (
	ActionClearChat       Action = "CLEAR_CHAT"
	ActionDeleteCommunity Action = "DELETE_COMMUNITY"
	ActionLeave           Action = "LEAVE"
)

// ParseAction maps the wire form of an action to its Action value.
func ParseAction(raw string) (Action, error) {
	switch raw {
	case "clear-chat":
		return ActionClearChat, nil
	case "delete":
		return ActionDeleteCommunity, nil
	case "leave":
		return ActionLeave, nil
	default:
		return "", ErrInvalidAction
	}
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateCommunityRequest) (*CommunityResponse, error)
	Get(ctx context.Context, id string) (*CommunityResponse, error)
	ListMine(ctx context.Context, userID snowflake.ID) ([]ListItem, error)
	ListDiscoverable(ctx context.Context, institutionID snowflake.ID) ([]ListItem, error)
	UpdateInfo(ctx context.Context, actorID snowflake.ID, communityID string, req UpdateCommunityRequest) error

	RoleState(ctx context.Context, communityID string) (*RoleState, error)
	// UpdateRole applies an admin-initiated promote/demote and returns the
	// resulting role state.
	UpdateRole(ctx context.Context, actorID snowflake.ID, communityID string, req UpdateRoleRequest) (*RoleState, error)

	// SetRole is the primitive role transition: it atomically moves the user
	// to the target role (or removes them for RoleNone). Callers are
	// responsible for authorization.
	SetRole(ctx context.Context, communityID, userID snowflake.ID, role string) error
	// SetRoleTx runs the same transition inside the caller's transaction so
	// multi-step workflows stay atomic.
	SetRoleTx(ctx context.Context, tx *gorm.DB, communityID, userID snowflake.ID, role string) error

	PerformAction(ctx context.Context, actorID snowflake.ID, communityID string, action Action) error

	IsAdmin(ctx context.Context, communityID, userID snowflake.ID) (bool, error)
}

type CreateCommunityRequest struct {
	InstitutionID snowflake.ID
	Name          string
	Description   string
	Image         string
	Type          string
}

type UpdateCommunityRequest struct {
	Name        *string
	Description *string
	Image       *string
}

type UpdateRoleRequest struct {
	UserID string
	Action string // promote | demote
	Role   string // admin | moderator
}

type CommunityResponse struct {
	ID            string `json:"id"`
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	Type          string `json:"type"`
	IsDefault     bool   `json:"is_default"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidType        = errors.New("invalid_type")
	ErrInvalidCommunity   = errors.New("invalid_community")
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidAction      = errors.New("invalid_action")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrCommunityNotFound  = errors.New("community_not_found")
	ErrMemberNotFound     = errors.New("member_not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyMember      = errors.New("already_member")
	ErrLastAdmin          = errors.New("last_admin")
	ErrProtectedCommunity = errors.New("protected_community")
)
