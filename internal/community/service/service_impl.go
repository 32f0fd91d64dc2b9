package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/events"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	"github.com/openatrium/atrium/pkg/db"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	codeRepo  invitecodedomain.Repository
	holder    *config.PlatformConfigHolder
	genID     *snowflake.Node
	publisher events.EventPublisher
}

func NewService(
	database *gorm.DB,
	repo domain.Repository,
	codeRepo invitecodedomain.Repository,
	holder *config.PlatformConfigHolder,
	genID *snowflake.Node,
	publisher events.EventPublisher,
) domain.Service {
	return &service{
		db:        database,
		repo:      repo,
		codeRepo:  codeRepo,
		holder:    holder,
		genID:     genID,
		publisher: publisher,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateCommunityRequest) (*domain.CommunityResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	communityType := strings.ToUpper(strings.TrimSpace(req.Type))
	if communityType == "" {
		communityType = domain.TypePublic
	}
	if communityType != domain.TypePublic && communityType != domain.TypeRestricted {
		return nil, domain.ErrInvalidType
	}

	now := time.Now().UTC()
	communityID := s.genID.Generate()
	community := domain.Community{
		ID:            communityID,
		InstitutionID: req.InstitutionID,
		Name:          name,
		Slug:          slug.Make(name),
		Description:   strings.TrimSpace(req.Description),
		Image:         strings.TrimSpace(req.Image),
		Type:          communityType,
		CreatorID:     userID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// A slug collision fails the whole transaction, so retry once with a
	// suffixed slug instead of surfacing the conflict.
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			community.Slug = fmt.Sprintf("%s-%d", slug.Make(name), communityID%100000)
		}
		err := s.createTx(ctx, community, userID, now)
		if err == nil {
			return s.toResponse(&community), nil
		}
		if !db.IsDuplicateKeyErr(err) || attempt > 0 {
			return nil, err
		}
	}
	return nil, domain.ErrInvalidName
}

func (s *service) createTx(ctx context.Context, community domain.Community, creatorID snowflake.ID, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateCommunity(ctx, community); err != nil {
			return err
		}

		member := domain.Member{
			ID:          s.genID.Generate(),
			CommunityID: community.ID,
			UserID:      creatorID,
			Role:        domain.RoleAdmin,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := repo.UpsertMemberRole(ctx, member); err != nil {
			return err
		}

		codeRepo := s.codeRepo.WithTx(tx)
		for _, codeType := range []string{invitecodedomain.CodeTypeMember, invitecodedomain.CodeTypeAdmin} {
			if err := s.issueCodeTx(ctx, codeRepo, community.ID, codeType, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) issueCodeTx(ctx context.Context, repo invitecodedomain.Repository, communityID snowflake.ID, codeType string, now time.Time) error {
	length := s.holder.Current().InviteCodeLength
	for attempt := 0; attempt < 3; attempt++ {
		value, err := invitecodedomain.GenerateCode(length)
		if err != nil {
			return err
		}
		taken, err := repo.CodeExists(ctx, value)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		return repo.Create(ctx, invitecodedomain.InviteCode{
			ID:          s.genID.Generate(),
			CommunityID: communityID,
			Type:        codeType,
			Code:        value,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return fmt.Errorf("could not generate a unique %s code", codeType)
}

func (s *service) Get(ctx context.Context, id string) (*domain.CommunityResponse, error) {
	communityID, err := parseCommunityID(id)
	if err != nil {
		return nil, err
	}

	community, err := s.repo.FindByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(community), nil
}

func (s *service) ListMine(ctx context.Context, userID snowflake.ID) ([]domain.ListItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) ListDiscoverable(ctx context.Context, institutionID snowflake.ID) ([]domain.ListItem, error) {
	return s.repo.ListDiscoverable(ctx, institutionID)
}

func (s *service) UpdateInfo(ctx context.Context, actorID snowflake.ID, communityID string, req domain.UpdateCommunityRequest) error {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return err
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ErrInvalidName
		}
		fields["name"] = name
		fields["slug"] = slug.Make(name)
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Image != nil {
		fields["image"] = strings.TrimSpace(*req.Image)
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if err := requireAdmin(ctx, repo, id, actorID); err != nil {
			return err
		}
		return repo.UpdateFields(ctx, id, fields)
	})
}

func (s *service) RoleState(ctx context.Context, communityID string) (*domain.RoleState, error) {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.RoleState(ctx, id)
}

// targetRole maps a promote/demote request to the role the engine should
// apply. Promotions name the destination role explicitly; demotions always
// land on MEMBER.
func targetRole(req domain.UpdateRoleRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "promote":
		switch strings.ToLower(strings.TrimSpace(req.Role)) {
		case "admin":
			return domain.RoleAdmin, nil
		case "moderator":
			return domain.RoleModerator, nil
		default:
			return "", domain.ErrInvalidRole
		}
	case "demote":
		return domain.RoleMember, nil
	default:
		return "", domain.ErrInvalidAction
	}
}

func (s *service) UpdateRole(ctx context.Context, actorID snowflake.ID, communityID string, req domain.UpdateRoleRequest) (*domain.RoleState, error) {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return nil, err
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	target, err := targetRole(req)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if err := requireAdmin(ctx, repo, id, actorID); err != nil {
			return err
		}
		current, err := repo.GetMemberRole(ctx, id, userID)
		if err != nil {
			return err
		}
		if current == domain.RoleNone {
			return domain.ErrMemberNotFound
		}
		if err := s.setRoleLocked(ctx, repo, id, userID, target); err != nil {
			return err
		}
		return s.emitRoleChanged(ctx, tx, id, userID, target)
	})
	if err != nil {
		return nil, err
	}

	return s.repo.RoleState(ctx, id)
}

func (s *service) SetRole(ctx context.Context, communityID, userID snowflake.ID, role string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.SetRoleTx(ctx, tx, communityID, userID, role)
	})
}

func (s *service) SetRoleTx(ctx context.Context, tx *gorm.DB, communityID, userID snowflake.ID, role string) error {
	repo := s.repo.WithTx(tx)
	if _, err := repo.FindByIDForUpdate(ctx, communityID); err != nil {
		return err
	}
	return s.setRoleLocked(ctx, repo, communityID, userID, role)
}

// setRoleLocked is the role transition engine. Callers must hold the
// community row lock so the last-admin count cannot change underneath.
func (s *service) setRoleLocked(ctx context.Context, repo domain.Repository, communityID, userID snowflake.ID, role string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if role != domain.RoleNone && !domain.ValidRole(role) {
		return domain.ErrInvalidRole
	}

	current, err := repo.GetMemberRole(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if current == role {
		return nil
	}

	if current == domain.RoleAdmin {
		admins, err := repo.CountByRole(ctx, communityID, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return domain.ErrLastAdmin
		}
	}

	if role == domain.RoleNone {
		return repo.DeleteMember(ctx, communityID, userID)
	}

	now := time.Now().UTC()
	return repo.UpsertMemberRole(ctx, domain.Member{
		ID:          s.genID.Generate(),
		CommunityID: communityID,
		UserID:      userID,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *service) PerformAction(ctx context.Context, actorID snowflake.ID, communityID string, action domain.Action) error {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		community, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		switch action {
		case domain.ActionClearChat:
			if err := requireAdmin(ctx, repo, id, actorID); err != nil {
				return err
			}
			if err := repo.DeleteMessages(ctx, id); err != nil {
				return err
			}
			return s.emitCommunityEvent(ctx, tx, events.ChatClearedTopic, map[string]string{
				"community_id": id.String(),
				"actor_id":     actorID.String(),
			})

		case domain.ActionDeleteCommunity:
			if err := requireAdmin(ctx, repo, id, actorID); err != nil {
				return err
			}
			if community.IsDefault {
				return domain.ErrProtectedCommunity
			}
			if err := repo.DeleteCascade(ctx, id); err != nil {
				return err
			}
			return s.emitCommunityEvent(ctx, tx, events.CommunityDeletedTopic, map[string]string{
				"community_id": id.String(),
				"actor_id":     actorID.String(),
			})

		case domain.ActionLeave:
			current, err := repo.GetMemberRole(ctx, id, actorID)
			if err != nil {
				return err
			}
			if current == domain.RoleNone {
				return domain.ErrMemberNotFound
			}
			if err := s.setRoleLocked(ctx, repo, id, actorID, domain.RoleNone); err != nil {
				return err
			}
			return s.emitRoleChanged(ctx, tx, id, actorID, domain.RoleNone)

		default:
			return domain.ErrInvalidAction
		}
	})
}

func (s *service) IsAdmin(ctx context.Context, communityID, userID snowflake.ID) (bool, error) {
	role, err := s.repo.GetMemberRole(ctx, communityID, userID)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

func requireAdmin(ctx context.Context, repo domain.Repository, communityID, actorID snowflake.ID) error {
	role, err := repo.GetMemberRole(ctx, communityID, actorID)
	if err != nil {
		return err
	}
	if role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}

func (s *service) emitRoleChanged(ctx context.Context, tx *gorm.DB, communityID, userID snowflake.ID, role string) error {
	return s.emitCommunityEvent(ctx, tx, events.MemberRoleChangedTopic, map[string]string{
		"community_id": communityID.String(),
		"user_id":      userID.String(),
		"role":         role,
	})
}

// emitCommunityEvent writes the outbox row through the caller's transaction;
// a failed write rolls the whole state change back.
func (s *service) emitCommunityEvent(ctx context.Context, tx *gorm.DB, topic string, payload map[string]string) error {
	if s.publisher == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publisher.WithTx(tx).Publish(ctx, topic, data)
}

func (s *service) toResponse(community *domain.Community) *domain.CommunityResponse {
	return &domain.CommunityResponse{
		ID:            community.ID.String(),
		InstitutionID: community.InstitutionID.String(),
		Name:          community.Name,
		Slug:          community.Slug,
		Description:   community.Description,
		Image:         community.Image,
		Type:          community.Type,
		IsDefault:     community.IsDefault,
	}
}

func parseCommunityID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.ErrInvalidCommunity
	}
	return id, nil
}
