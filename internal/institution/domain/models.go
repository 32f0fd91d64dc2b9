// Package domain contains persistence models for institutions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Institution code types mirror community code types: an ADMIN code marks
// the redeemer as institution admin, a MEMBER code just enrolls them.
const (
	CodeTypeAdmin  = "ADMIN"
	CodeTypeMember = "MEMBER"
)

// Institution is a tenant. Every community belongs to exactly one.
type Institution struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"type:text;not null" json:"name"`
	Slug      string            `gorm:"type:text;not null;uniqueIndex:ux_institutions_slug" json:"slug"`
	Image     string            `gorm:"type:text" json:"image"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Institution) TableName() string { return "institutions" }

// InstitutionCode is a redeemable enrollment secret.
type InstitutionCode struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	InstitutionID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_institution_code_type,priority:1" json:"institution_id"`
	Type          string       `gorm:"type:text;not null;uniqueIndex:ux_institution_code_type,priority:2" json:"type"`
	Code          string       `gorm:"type:text;not null;uniqueIndex:ux_institution_codes_code" json:"code"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InstitutionCode) TableName() string { return "institution_codes" }
