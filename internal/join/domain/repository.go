package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request JoinRequest) error
	Find(ctx context.Context, communityID, userID snowflake.ID) (*JoinRequest, error)
	Delete(ctx context.Context, communityID, userID snowflake.ID) error
	ListByCommunity(ctx context.Context, communityID snowflake.ID) ([]RequestView, error)
}
