package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/internal/community/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateCommunity(ctx context.Context, community domain.Community) error {
	return r.db.WithContext(ctx).Create(&community).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Community, error) {
	var community domain.Community
	err := r.db.WithContext(ctx).First(&community, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCommunityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id snowflake.ID) (*domain.Community, error) {
	var community domain.Community
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&community, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCommunityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (r *repository) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.Community{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrCommunityNotFound
	}
	return nil
}

func (r *repository) ListDiscoverable(ctx context.Context, institutionID snowflake.ID) ([]domain.ListItem, error) {
	var items []domain.ListItem
	query := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, image, type, created_at
		 FROM communities
		 WHERE institution_id = ?
		 ORDER BY created_at ASC`,
		institutionID,
	)
	if err := query.Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.ListItem, error) {
	var items []domain.ListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT c.id, c.name, c.slug, c.image, c.type, m.role, c.created_at
		 FROM communities c
		 JOIN community_members m ON m.community_id = c.id
		 WHERE m.user_id = ?
		 ORDER BY c.created_at ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) GetMemberRole(ctx context.Context, communityID, userID snowflake.ID) (string, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

func (r *repository) UpsertMemberRole(ctx context.Context, member domain.Member) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(&member).Error
}

func (r *repository) DeleteMember(ctx context.Context, communityID, userID snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&domain.Member{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) CountByRole(ctx context.Context, communityID snowflake.ID, role string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Member{}).
		Where("community_id = ? AND role = ?", communityID, role).
		Count(&count).Error
	return count, err
}

type roleStateRow struct {
	Role     string
	ID       snowflake.ID
	Name     string
	Username string
	Image    string
}

func (r *repository) RoleState(ctx context.Context, communityID snowflake.ID) (*domain.RoleState, error) {
	var rows []roleStateRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.role, u.id, u.name, u.username, u.image
		 FROM community_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.community_id = ?
		 ORDER BY m.created_at ASC`,
		communityID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	state := &domain.RoleState{
		Admins:     []domain.MemberView{},
		Moderators: []domain.MemberView{},
		Members:    []domain.MemberView{},
	}
	for _, row := range rows {
		view := domain.MemberView{
			ID:       row.ID,
			Name:     row.Name,
			Username: row.Username,
			Image:    row.Image,
		}
		switch row.Role {
		case domain.RoleAdmin:
			state.Admins = append(state.Admins, view)
		case domain.RoleModerator:
			state.Moderators = append(state.Moderators, view)
		case domain.RoleMember:
			state.Members = append(state.Members, view)
		}
	}
	return state, nil
}

func (r *repository) DeleteMessages(ctx context.Context, communityID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM messages WHERE community_id = ?`, communityID,
	).Error
}

func (r *repository) DeleteCascade(ctx context.Context, communityID snowflake.ID) error {
	statements := []string{
		`DELETE FROM messages WHERE community_id = ?`,
		`DELETE FROM join_requests WHERE community_id = ?`,
		`DELETE FROM community_codes WHERE community_id = ?`,
		`DELETE FROM community_members WHERE community_id = ?`,
		`DELETE FROM communities WHERE id = ?`,
	}
	for _, stmt := range statements {
		if err := r.db.WithContext(ctx).Exec(stmt, communityID).Error; err != nil {
			return err
		}
	}
	return nil
}
