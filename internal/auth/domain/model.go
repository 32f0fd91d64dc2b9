// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User represents a platform account.
type User struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	Username           string            `gorm:"type:text;not null;uniqueIndex:ux_users_username"`
	Email              string            `gorm:"column:email;uniqueIndex:ux_users_email"`
	Name               string            `gorm:"type:text;not null"`
	Image              string            `gorm:"type:text"`
	PasswordHash       *string           `gorm:"type:text"`
	InstitutionID      snowflake.ID      `gorm:"column:institution_id;index"`
	IsInstitutionAdmin bool              `gorm:"column:is_institution_admin;not null;default:false"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session represents a persisted login session.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// UserView is returned to clients without exposing credential state.
type UserView struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Image              string `json:"image"`
	InstitutionID      string `json:"institution_id,omitempty"`
	IsInstitutionAdmin bool   `json:"is_institution_admin"`
}

// View maps a user row to its client representation.
func (u *User) View() *UserView {
	view := &UserView{
		ID:                 u.ID.String(),
		Username:           u.Username,
		Email:              u.Email,
		Name:               u.Name,
		Image:              u.Image,
		IsInstitutionAdmin: u.IsInstitutionAdmin,
	}
	if u.InstitutionID != 0 {
		view.InstitutionID = u.InstitutionID.String()
	}
	return view
}
