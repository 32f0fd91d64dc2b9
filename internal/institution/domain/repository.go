package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, institution Institution) error
	FindByID(ctx context.Context, id snowflake.ID) (*Institution, error)
	CreateCode(ctx context.Context, code InstitutionCode) error
	FindCodeByValue(ctx context.Context, value string) (*InstitutionCode, error)
	ListCodes(ctx context.Context, institutionID snowflake.ID) ([]InstitutionCode, error)
	CodeExists(ctx context.Context, value string) (bool, error)
	// DefaultCommunityID returns the institution's welcome community, zero
	// when none exists.
	DefaultCommunityID(ctx context.Context, institutionID snowflake.ID) (snowflake.ID, error)
}
