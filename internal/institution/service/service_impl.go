package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/institution/domain"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	"gorm.io/gorm"
)

const welcomeCommunityName = "Welcome"

type service struct {
	db            *gorm.DB
	cfg           config.Config
	repo          domain.Repository
	authRepo      authdomain.Repository
	communityRepo communitydomain.Repository
	communitySvc  communitydomain.Service
	codeRepo      invitecodedomain.Repository
	holder        *config.PlatformConfigHolder
	genID         *snowflake.Node
}

func NewService(
	database *gorm.DB,
	cfg config.Config,
	repo domain.Repository,
	authRepo authdomain.Repository,
	communityRepo communitydomain.Repository,
	communitySvc communitydomain.Service,
	codeRepo invitecodedomain.Repository,
	holder *config.PlatformConfigHolder,
	genID *snowflake.Node,
) domain.Service {
	return &service{
		db:            database,
		cfg:           cfg,
		repo:          repo,
		authRepo:      authRepo,
		communityRepo: communityRepo,
		communitySvc:  communitySvc,
		codeRepo:      codeRepo,
		holder:        holder,
		genID:         genID,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateInstitutionRequest) (*domain.InstitutionResponse, error) {
	if s.cfg.PlatformAdminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.cfg.PlatformAdminSecret)) != 1 {
		return nil, domain.ErrInvalidSecret
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	institution := domain.Institution{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Image:     strings.TrimSpace(req.Image),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, institution); err != nil {
			return err
		}

		for _, codeType := range []string{domain.CodeTypeMember, domain.CodeTypeAdmin} {
			code, err := s.freshInstitutionCode(ctx, repo)
			if err != nil {
				return err
			}
			if err := repo.CreateCode(ctx, domain.InstitutionCode{
				ID:            s.genID.Generate(),
				InstitutionID: institution.ID,
				Type:          codeType,
				Code:          code,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return err
			}
		}

		return s.createWelcomeCommunityTx(ctx, tx, institution, now)
	})
	if err != nil {
		return nil, err
	}

	return &domain.InstitutionResponse{
		ID:    institution.ID.String(),
		Name:  institution.Name,
		Slug:  institution.Slug,
		Image: institution.Image,
	}, nil
}

// createWelcomeCommunityTx seeds the default community every enrollee lands
// in. It has no creator and cannot be deleted.
func (s *service) createWelcomeCommunityTx(ctx context.Context, tx *gorm.DB, institution domain.Institution, now time.Time) error {
	communityID := s.genID.Generate()
	community := communitydomain.Community{
		ID:            communityID,
		InstitutionID: institution.ID,
		Name:          welcomeCommunityName,
		Slug:          fmt.Sprintf("welcome-%s", institution.Slug),
		Description:   fmt.Sprintf("The home community of %s.", institution.Name),
		Type:          communitydomain.TypePublic,
		IsDefault:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.communityRepo.WithTx(tx).CreateCommunity(ctx, community); err != nil {
		return err
	}

	codeRepo := s.codeRepo.WithTx(tx)
	length := s.holder.Current().InviteCodeLength
	for _, codeType := range []string{invitecodedomain.CodeTypeMember, invitecodedomain.CodeTypeAdmin} {
		value, err := invitecodedomain.GenerateCode(length)
		if err != nil {
			return err
		}
		if err := codeRepo.Create(ctx, invitecodedomain.InviteCode{
			ID:          s.genID.Generate(),
			CommunityID: communityID,
			Type:        codeType,
			Code:        value,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, id string) (*domain.InstitutionResponse, error) {
	institutionID, err := parseInstitutionID(id)
	if err != nil {
		return nil, err
	}
	institution, err := s.repo.FindByID(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	return &domain.InstitutionResponse{
		ID:    institution.ID.String(),
		Name:  institution.Name,
		Slug:  institution.Slug,
		Image: institution.Image,
	}, nil
}

func (s *service) JoinByCode(ctx context.Context, userID snowflake.ID, code string) (*domain.JoinInstitutionResult, error) {
	value := strings.TrimSpace(code)
	if value == "" {
		return nil, domain.ErrInvalidInstitutionCode
	}

	var result *domain.JoinInstitutionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		institutionCode, err := repo.FindCodeByValue(ctx, value)
		if err != nil {
			return err
		}

		user, err := s.authRepo.FindByID(ctx, userID)
		if err != nil {
			return err
		}

		grantsAdmin := institutionCode.Type == domain.CodeTypeAdmin
		if user.InstitutionID == institutionCode.InstitutionID {
			// Re-enrolling is only meaningful as an admin upgrade.
			if !grantsAdmin || user.IsInstitutionAdmin {
				return domain.ErrAlreadyEnrolled
			}
		}

		fields := map[string]any{
			"institution_id": institutionCode.InstitutionID,
			"updated_at":     time.Now().UTC(),
		}
		if grantsAdmin {
			fields["is_institution_admin"] = true
		}
		if err := tx.WithContext(ctx).Model(&authdomain.User{}).
			Where("id = ?", userID).
			Updates(fields).Error; err != nil {
			return err
		}

		defaultID, err := repo.DefaultCommunityID(ctx, institutionCode.InstitutionID)
		if err != nil {
			return err
		}
		if defaultID != 0 {
			if err := s.communitySvc.SetRoleTx(ctx, tx, defaultID, userID, communitydomain.RoleMember); err != nil {
				return err
			}
		}

		result = &domain.JoinInstitutionResult{
			InstitutionID:      institutionCode.InstitutionID.String(),
			IsInstitutionAdmin: grantsAdmin || user.IsInstitutionAdmin,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListCodes(ctx context.Context, actorID snowflake.ID, institutionID string) ([]domain.InstitutionCode, error) {
	id, err := parseInstitutionID(institutionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	actor, err := s.authRepo.FindByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsInstitutionAdmin || actor.InstitutionID != id {
		return nil, domain.ErrForbidden
	}

	return s.repo.ListCodes(ctx, id)
}

func (s *service) freshInstitutionCode(ctx context.Context, repo domain.Repository) (string, error) {
	length := s.holder.Current().InviteCodeLength
	for attempt := 0; attempt < 3; attempt++ {
		value, err := invitecodedomain.GenerateCode(length)
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
	return "", fmt.Errorf("could not generate a unique institution code")
}

func parseInstitutionID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.ErrInstitutionNotFound
	}
	return id, nil
}
