package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/internal/institution/domain"
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

func (r *repository) Create(ctx context.Context, institution domain.Institution) error {
	return r.db.WithContext(ctx).Create(&institution).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Institution, error) {
	var institution domain.Institution
	err := r.db.WithContext(ctx).First(&institution, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInstitutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &institution, nil
}

func (r *repository) CreateCode(ctx context.Context, code domain.InstitutionCode) error {
	return r.db.WithContext(ctx).Create(&code).Error
}

func (r *repository) FindCodeByValue(ctx context.Context, value string) (*domain.InstitutionCode, error) {
	var code domain.InstitutionCode
	err := r.db.WithContext(ctx).Where("code = ?", value).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidInstitutionCode
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) ListCodes(ctx context.Context, institutionID snowflake.ID) ([]domain.InstitutionCode, error) {
	var codes []domain.InstitutionCode
	err := r.db.WithContext(ctx).
		Where("institution_id = ?", institutionID).
		Order("type ASC").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repository) CodeExists(ctx context.Context, value string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.InstitutionCode{}).
		Where("code = ?", value).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) DefaultCommunityID(ctx context.Context, institutionID snowflake.ID) (snowflake.ID, error) {
	var id snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT id FROM communities WHERE institution_id = ? AND is_default`,
		institutionID,
	).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	return id, nil
}
