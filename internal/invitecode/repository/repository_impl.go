package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/internal/invitecode/domain"
	"gorm.io/gorm"
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

func (r *repository) Create(ctx context.Context, code domain.InviteCode) error {
	return r.db.WithContext(ctx).Create(&code).Error
}

func (r *repository) FindByCommunityAndType(ctx context.Context, communityID snowflake.ID, codeType string) (*domain.InviteCode, error) {
	var code domain.InviteCode
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND type = ?", communityID, codeType).
		First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) FindByCode(ctx context.Context, value string) (*domain.InviteCode, error) {
	var code domain.InviteCode
	err := r.db.WithContext(ctx).Where("code = ?", value).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) UpdateCodeValue(ctx context.Context, id snowflake.ID, value string) error {
	tx := r.db.WithContext(ctx).Model(&domain.InviteCode{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"code":       value,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrInvalidCode
	}
	return nil
}

func (r *repository) CodeExists(ctx context.Context, value string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.InviteCode{}).
		Where("code = ?", value).
		Count(&count).Error
	return count > 0, err
}
