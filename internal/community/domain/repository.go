package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCommunity(ctx context.Context, community Community) error
	FindByID(ctx context.Context, id snowflake.ID) (*Community, error)
	// FindByIDForUpdate locks the community row for the duration of the
	// surrounding transaction, serializing membership mutations per community.
	FindByIDForUpdate(ctx context.Context, id snowflake.ID) (*Community, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ListDiscoverable(ctx context.Context, institutionID snowflake.ID) ([]ListItem, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]ListItem, error)

	GetMemberRole(ctx context.Context, communityID, userID snowflake.ID) (string, error)
	UpsertMemberRole(ctx context.Context, member Member) error
	DeleteMember(ctx context.Context, communityID, userID snowflake.ID) error
	CountByRole(ctx context.Context, communityID snowflake.ID, role string) (int64, error)
	RoleState(ctx context.Context, communityID snowflake.ID) (*RoleState, error)

	// DeleteMessages clears the community chat without touching membership.
	DeleteMessages(ctx context.Context, communityID snowflake.ID) error
	// DeleteCascade removes the community and every dependent record
	// (messages, join requests, invite codes, membership rows).
	DeleteCascade(ctx context.Context, communityID snowflake.ID) error
}
