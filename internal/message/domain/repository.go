package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, message Message) error
	// ListByCommunity returns messages newest first, starting strictly
	// before the cursor ID when one is given.
	ListByCommunity(ctx context.Context, communityID snowflake.ID, beforeID snowflake.ID, limit int) ([]MessageView, error)
}
