// Package domain contains persistence models for the community service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Community types control which join paths are open.
const (
	TypePublic     = "PUBLIC"
	TypeRestricted = "RESTRICTED"
)

// Role is the single membership role a user holds in a community.
// A user has exactly one row in community_members per community, so the
// three role sets are disjoint by construction.
const (
	RoleAdmin     = "ADMIN"
	RoleModerator = "MODERATOR"
	RoleMember    = "MEMBER"
	RoleNone      = "NONE"
)

// Community represents a joinable group inside an institution.
type Community struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	InstitutionID snowflake.ID      `gorm:"not null;index" json:"institution_id"`
	Name          string            `gorm:"type:text;not null" json:"name"`
	Slug          string            `gorm:"type:text;not null;uniqueIndex:ux_communities_slug" json:"slug"`
	Description   string            `gorm:"type:text" json:"description"`
	Image         string            `gorm:"type:text" json:"image"`
	Type          string            `gorm:"type:text;not null;default:'PUBLIC'" json:"type"`
	IsDefault     bool              `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatorID     snowflake.ID      `gorm:"not null" json:"creator_id"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Community) TableName() string { return "communities" }

// Member is the (community, user) -> role mapping. The unique index on
// (community_id, user_id) is the backstop for the one-role invariant.
type Member struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CommunityID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_community_user,priority:1" json:"community_id"`
	UserID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_community_user,priority:2" json:"user_id"`
	Role        string       `gorm:"type:text;not null" json:"role"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "community_members" }

// MemberView is the public projection of a member for role listings.
type MemberView struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Username string       `json:"username"`
	Image    string       `json:"image"`
}

// RoleState groups the current members of a community by role.
type RoleState struct {
	Admins     []MemberView `json:"admins"`
	Moderators []MemberView `json:"moderators"`
	Members    []MemberView `json:"members"`
}

// ListItem is a community row as seen in membership listings.
type ListItem struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Image     string       `json:"image"`
	Type      string       `json:"type"`
	Role      string       `json:"role,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ValidRole reports whether role is a storable membership role.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	default:
		return false
	}
}
