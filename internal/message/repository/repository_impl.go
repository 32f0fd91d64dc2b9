package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/internal/message/domain"
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

func (r *repository) Create(ctx context.Context, message domain.Message) error {
	return r.db.WithContext(ctx).Create(&message).Error
}

func (r *repository) ListByCommunity(ctx context.Context, communityID snowflake.ID, beforeID snowflake.ID, limit int) ([]domain.MessageView, error) {
	query := `SELECT m.id, m.user_id, u.name, u.username, u.image, m.body, m.created_at
		 FROM messages m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.community_id = ?`
	args := []any{communityID}
	if beforeID != 0 {
		query += ` AND m.id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY m.id DESC LIMIT ?`
	args = append(args, limit)

	var views []domain.MessageView
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}
