package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, code InviteCode) error
	FindByCommunityAndType(ctx context.Context, communityID snowflake.ID, codeType string) (*InviteCode, error)
	FindByCode(ctx context.Context, code string) (*InviteCode, error)
	UpdateCodeValue(ctx context.Context, id snowflake.ID, code string) error
	CodeExists(ctx context.Context, code string) (bool, error)
}
