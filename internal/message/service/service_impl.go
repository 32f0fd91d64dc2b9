package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/message/domain"
	"github.com/openatrium/atrium/pkg/db/pagination"
	"gorm.io/gorm"
)

type service struct {
	db            *gorm.DB
	repo          domain.Repository
	communityRepo communitydomain.Repository
	holder        *config.PlatformConfigHolder
	genID         *snowflake.Node
}

func NewService(
	database *gorm.DB,
	repo domain.Repository,
	communityRepo communitydomain.Repository,
	holder *config.PlatformConfigHolder,
	genID *snowflake.Node,
) domain.Service {
	return &service{
		db:            database,
		repo:          repo,
		communityRepo: communityRepo,
		holder:        holder,
		genID:         genID,
	}
}

func (s *service) Post(ctx context.Context, userID snowflake.ID, communityID string, body string) (*domain.MessageView, error) {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.ErrEmptyMessage
	}

	if err := s.requireMember(ctx, id, userID); err != nil {
		return nil, err
	}

	message := domain.Message{
		ID:          s.genID.Generate(),
		CommunityID: id,
		UserID:      userID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, err
	}

	return &domain.MessageView{
		ID:        message.ID,
		UserID:    userID,
		Body:      body,
		CreatedAt: message.CreatedAt,
	}, nil
}

func (s *service) List(ctx context.Context, userID snowflake.ID, communityID string, page pagination.Pagination) (*domain.MessagePage, error) {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, id, userID); err != nil {
		return nil, err
	}

	platform := s.holder.Current()
	limit := page.PageSize
	if limit <= 0 {
		limit = platform.MessagePageSize
	}
	if limit > platform.MaxPageSize {
		limit = platform.MaxPageSize
	}

	var beforeID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			beforeID, err = snowflake.ParseString(cursor.ID)
			if err != nil {
				return nil, err
			}
		}
	}

	// Fetch one extra row to detect whether another page exists.
	views, err := s.repo.ListByCommunity(ctx, id, beforeID, limit+1)
	if err != nil {
		return nil, err
	}

	result := &domain.MessagePage{Messages: views}
	if len(views) > limit {
		result.Messages = views[:limit]
		last := result.Messages[limit-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: last.ID.String()})
		if err != nil {
			return nil, err
		}
		result.PageInfo = pagination.PageInfo{NextPageToken: token, HasMore: true}
	}
	return result, nil
}

func (s *service) requireMember(ctx context.Context, communityID, userID snowflake.ID) error {
	if _, err := s.communityRepo.FindByID(ctx, communityID); err != nil {
		return err
	}
	role, err := s.communityRepo.GetMemberRole(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if role == communitydomain.RoleNone {
		return communitydomain.ErrForbidden
	}
	return nil
}

func parseCommunityID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, communitydomain.ErrInvalidCommunity
	}
	return id, nil
}
