package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/invitecode/domain"
	"gorm.io/gorm"
)

type service struct {
	db            *gorm.DB
	repo          domain.Repository
	communityRepo communitydomain.Repository
	holder        *config.PlatformConfigHolder
}

func NewService(
	database *gorm.DB,
	repo domain.Repository,
	communityRepo communitydomain.Repository,
	holder *config.PlatformConfigHolder,
) domain.Service {
	return &service{
		db:            database,
		repo:          repo,
		communityRepo: communityRepo,
		holder:        holder,
	}
}

func (s *service) GetCode(ctx context.Context, actorID snowflake.ID, communityID string, codeType string) (*domain.CodeResponse, error) {
	id, codeType, err := s.resolveRequest(communityID, codeType)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, id, actorID); err != nil {
		return nil, err
	}

	code, err := s.repo.FindByCommunityAndType(ctx, id, codeType)
	if err != nil {
		return nil, err
	}
	return toResponse(code), nil
}

func (s *service) RotateCode(ctx context.Context, actorID snowflake.ID, communityID string, codeType string) (*domain.CodeResponse, error) {
	id, codeType, err := s.resolveRequest(communityID, codeType)
	if err != nil {
		return nil, err
	}

	var rotated *domain.InviteCode
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		communityRepo := s.communityRepo.WithTx(tx)

		// Lock the community row so concurrent rotations of the same code
		// serialize instead of clobbering each other.
		if _, err := communityRepo.FindByIDForUpdate(ctx, id); err != nil {
			return err
		}
		role, err := communityRepo.GetMemberRole(ctx, id, actorID)
		if err != nil {
			return err
		}
		if role != communitydomain.RoleAdmin {
			return domain.ErrForbidden
		}

		code, err := repo.FindByCommunityAndType(ctx, id, codeType)
		if err != nil {
			return err
		}

		value, err := s.freshCode(ctx, repo)
		if err != nil {
			return err
		}
		if err := repo.UpdateCodeValue(ctx, code.ID, value); err != nil {
			return err
		}

		code.Code = value
		rotated = code
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toResponse(rotated), nil
}

func (s *service) Resolve(ctx context.Context, code string) (*domain.InviteCode, error) {
	value := strings.TrimSpace(code)
	if value == "" {
		return nil, domain.ErrInvalidCode
	}
	return s.repo.FindByCode(ctx, value)
}

func (s *service) freshCode(ctx context.Context, repo domain.Repository) (string, error) {
	length := s.holder.Current().InviteCodeLength
	for attempt := 0; attempt < 3; attempt++ {
		value, err := domain.GenerateCode(length)
		if err != nil {
			return "", err
		}
		taken, err := repo.CodeExists(ctx, value)
		if err != nil {
			return "", err
		}
		if !taken {
			return value, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique invite code")
}

func (s *service) resolveRequest(communityID, codeType string) (snowflake.ID, string, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(communityID))
	if err != nil {
		return 0, "", communitydomain.ErrInvalidCommunity
	}
	codeType = strings.ToUpper(strings.TrimSpace(codeType))
	if codeType == "" {
		codeType = domain.CodeTypeMember
	}
	if !domain.ValidCodeType(codeType) {
		return 0, "", domain.ErrInvalidCodeType
	}
	return id, codeType, nil
}

func (s *service) requireAdmin(ctx context.Context, communityID, actorID snowflake.ID) error {
	if _, err := s.communityRepo.FindByID(ctx, communityID); err != nil {
		return err
	}
	role, err := s.communityRepo.GetMemberRole(ctx, communityID, actorID)
	if err != nil {
		return err
	}
	if role != communitydomain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}

func toResponse(code *domain.InviteCode) *domain.CodeResponse {
	return &domain.CodeResponse{
		CommunityID: code.CommunityID.String(),
		Type:        code.Type,
		Code:        code.Code,
	}
}
