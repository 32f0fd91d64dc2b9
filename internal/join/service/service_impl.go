package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/events"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	"github.com/openatrium/atrium/internal/join/domain"
	"github.com/openatrium/atrium/pkg/db"
	"gorm.io/gorm"
)

type service struct {
	db            *gorm.DB
	repo          domain.Repository
	communityRepo communitydomain.Repository
	communitySvc  communitydomain.Service
	codeRepo      invitecodedomain.Repository
	genID         *snowflake.Node
	publisher     events.EventPublisher
}

func NewService(
	database *gorm.DB,
	repo domain.Repository,
	communityRepo communitydomain.Repository,
	communitySvc communitydomain.Service,
	codeRepo invitecodedomain.Repository,
	genID *snowflake.Node,
	publisher events.EventPublisher,
) domain.Service {
	return &service{
		db:            database,
		repo:          repo,
		communityRepo: communityRepo,
		communitySvc:  communitySvc,
		codeRepo:      codeRepo,
		genID:         genID,
		publisher:     publisher,
	}
}

func (s *service) JoinPublic(ctx context.Context, userID snowflake.ID, communityID string) error {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return err
	}
	if userID == 0 {
		return communitydomain.ErrInvalidUser
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		communityRepo := s.communityRepo.WithTx(tx)
		community, err := communityRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if community.Type != communitydomain.TypePublic {
			return communitydomain.ErrForbidden
		}

		current, err := communityRepo.GetMemberRole(ctx, id, userID)
		if err != nil {
			return err
		}
		if current != communitydomain.RoleNone {
			return communitydomain.ErrAlreadyMember
		}

		return s.communitySvc.SetRoleTx(ctx, tx, id, userID, communitydomain.RoleMember)
	})
}

func (s *service) RequestJoin(ctx context.Context, userID snowflake.ID, communityID string, message string) error {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return err
	}
	if userID == 0 {
		return communitydomain.ErrInvalidUser
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		communityRepo := s.communityRepo.WithTx(tx)
		community, err := communityRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// Public communities are joined directly; a request would just sit
		// unanswered.
		if community.Type != communitydomain.TypeRestricted {
			return communitydomain.ErrForbidden
		}

		current, err := communityRepo.GetMemberRole(ctx, id, userID)
		if err != nil {
			return err
		}
		if current != communitydomain.RoleNone {
			return communitydomain.ErrAlreadyMember
		}

		return s.repo.WithTx(tx).Create(ctx, domain.JoinRequest{
			ID:          s.genID.Generate(),
			CommunityID: id,
			UserID:      userID,
			Message:     strings.TrimSpace(message),
			CreatedAt:   time.Now().UTC(),
		})
	})
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateRequest
	}
	return err
}

func (s *service) ListPending(ctx context.Context, actorID snowflake.ID, communityID string) ([]domain.RequestView, error) {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return nil, err
	}
	if _, err := s.communityRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	isAdmin, err := s.communitySvc.IsAdmin(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, communitydomain.ErrForbidden
	}

	return s.repo.ListByCommunity(ctx, id)
}

func (s *service) ResolveRequest(ctx context.Context, actorID snowflake.ID, communityID string, req domain.ResolveRequest) error {
	id, err := parseCommunityID(communityID)
	if err != nil {
		return err
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		return communitydomain.ErrInvalidUser
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		communityRepo := s.communityRepo.WithTx(tx)
		if _, err := communityRepo.FindByIDForUpdate(ctx, id); err != nil {
			return err
		}
		actorRole, err := communityRepo.GetMemberRole(ctx, id, actorID)
		if err != nil {
			return err
		}
		if actorRole != communitydomain.RoleAdmin {
			return communitydomain.ErrForbidden
		}

		repo := s.repo.WithTx(tx)
		if _, err := repo.Find(ctx, id, userID); err != nil {
			return err
		}
		if err := repo.Delete(ctx, id, userID); err != nil {
			return err
		}

		if req.Approve {
			if err := s.communitySvc.SetRoleTx(ctx, tx, id, userID, communitydomain.RoleMember); err != nil {
				return err
			}
		}
		return s.emitRequestResolved(ctx, tx, id, userID, req.Approve)
	})
}

func (s *service) JoinWithCode(ctx context.Context, userID snowflake.ID, code string) (*domain.JoinResult, error) {
	if userID == 0 {
		return nil, communitydomain.ErrInvalidUser
	}
	value := strings.TrimSpace(code)
	if value == "" {
		return nil, invitecodedomain.ErrInvalidCode
	}

	var result *domain.JoinResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Resolve inside the transaction so a rotation racing this join
		// invalidates the old value before membership is granted.
		invite, err := s.codeRepo.WithTx(tx).FindByCode(ctx, value)
		if err != nil {
			return err
		}

		communityRepo := s.communityRepo.WithTx(tx)
		if _, err := communityRepo.FindByIDForUpdate(ctx, invite.CommunityID); err != nil {
			return err
		}

		granted := invite.GrantedRole()
		current, err := communityRepo.GetMemberRole(ctx, invite.CommunityID, userID)
		if err != nil {
			return err
		}
		// Any existing role means the code has nothing to grant.
		if current != communitydomain.RoleNone {
			return communitydomain.ErrAlreadyMember
		}

		if err := s.communitySvc.SetRoleTx(ctx, tx, invite.CommunityID, userID, granted); err != nil {
			return err
		}

		// Joining by code settles any pending request the user had filed.
		if err := s.repo.WithTx(tx).Delete(ctx, invite.CommunityID, userID); err != nil && !errors.Is(err, domain.ErrRequestNotFound) {
			return err
		}

		result = &domain.JoinResult{
			CommunityID: invite.CommunityID.String(),
			Role:        granted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// emitRequestResolved writes the outbox row through the caller's transaction
// so the decision and its event commit together.
func (s *service) emitRequestResolved(ctx context.Context, tx *gorm.DB, communityID, userID snowflake.ID, approved bool) error {
	if s.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"community_id": communityID.String(),
		"user_id":      userID.String(),
		"approved":     approved,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publisher.WithTx(tx).Publish(ctx, events.JoinRequestResolvedTopic, data)
}

func parseCommunityID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, communitydomain.ErrInvalidCommunity
	}
	return id, nil
}
