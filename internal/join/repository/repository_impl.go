package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/internal/join/domain"
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

func (r *repository) Create(ctx context.Context, request domain.JoinRequest) error {
	return r.db.WithContext(ctx).Create(&request).Error
}

func (r *repository) Find(ctx context.Context, communityID, userID snowflake.ID) (*domain.JoinRequest, error) {
	var request domain.JoinRequest
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) Delete(ctx context.Context, communityID, userID snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&domain.JoinRequest{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *repository) ListByCommunity(ctx context.Context, communityID snowflake.ID) ([]domain.RequestView, error) {
	var views []domain.RequestView
	err := r.db.WithContext(ctx).Raw(
		`SELECT r.id, r.user_id, u.name, u.username, u.image, r.message, r.created_at
		 FROM join_requests r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.community_id = ?
		 ORDER BY r.created_at ASC`,
		communityID,
	).Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}
