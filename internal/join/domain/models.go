// Package domain contains persistence models for the join workflow service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// JoinRequest is a pending ask to enter a restricted community. Rows only
// exist while the request is undecided; approval and rejection both remove
// the row.
type JoinRequest struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CommunityID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_join_request_user,priority:1" json:"community_id"`
	UserID      snowflake.ID `gorm:"not null;uniqueIndex:ux_join_request_user,priority:2" json:"user_id"`
	Message     string       `gorm:"type:text" json:"message"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (JoinRequest) TableName() string { return "join_requests" }

// RequestView is a pending request joined with requester identity for the
// admin review screen.
type RequestView struct {
	ID        snowflake.ID `json:"id"`
	UserID    snowflake.ID `json:"user_id"`
	Name      string       `json:"name"`
	Username  string       `json:"username"`
	Image     string       `json:"image"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
}
