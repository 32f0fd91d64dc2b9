// Package domain contains persistence models for community chat.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Message struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CommunityID snowflake.ID `gorm:"not null;index:ix_messages_community" json:"community_id"`
	UserID      snowflake.ID `gorm:"not null" json:"user_id"`
	Body        string       `gorm:"type:text;not null" json:"body"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Message) TableName() string { return "messages" }

// MessageView is a message joined with sender identity.
type MessageView struct {
	ID        snowflake.ID `json:"id"`
	UserID    snowflake.ID `json:"user_id"`
	Name      string       `json:"name"`
	Username  string       `json:"username"`
	Image     string       `json:"image"`
	Body      string       `json:"body"`
	CreatedAt time.Time    `json:"created_at"`
}
