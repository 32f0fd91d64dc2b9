// Package domain contains persistence models for the invite code service.
package domain

import (
	"crypto/rand"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Invite code types. Admin codes grant ADMIN on redemption, member codes
// grant MEMBER. The namespaces are disjoint rows of one table.
const (
	CodeTypeAdmin  = "ADMIN"
	CodeTypeMember = "MEMBER"
)

// InviteCode is a redeemable secret bound to one community and role.
type InviteCode struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CommunityID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_community_code_type,priority:1" json:"community_id"`
	Type        string       `gorm:"type:text;not null;uniqueIndex:ux_community_code_type,priority:2" json:"type"`
	Code        string       `gorm:"type:text;not null;uniqueIndex:ux_community_codes_code" json:"code"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InviteCode) TableName() string { return "community_codes" }

// GrantedRole returns the membership role this code grants.
func (c InviteCode) GrantedRole() string {
	if c.Type == CodeTypeAdmin {
		return "ADMIN"
	}
	return "MEMBER"
}

// ValidCodeType reports whether t names a code namespace.
func ValidCodeType(t string) bool {
	return t == CodeTypeAdmin || t == CodeTypeMember
}

// Codes avoid ambiguous characters so they survive being read aloud.
const codeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// GenerateCode returns a random invite code of the given length. Bytes at or
// above the largest multiple of the alphabet size are discarded so the modulo
// cannot skew toward the leading characters.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 10
	}
	limit := byte(256 - 256%len(codeAlphabet))
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit || len(out) == length {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
		}
	}
	return string(out), nil
}
