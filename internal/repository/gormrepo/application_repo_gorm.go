package gormrepo

import (
	"context"
	"errors"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository"

	"gorm.io/gorm"
)

type applicationRepo struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) repository.ApplicationRepository {
	return &applicationRepo{db: db}
}

func (r *applicationRepo) Save(ctx context.Context, app *domain.RoleApplication) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *applicationRepo) FindByID(ctx context.Context, id uint64) (*domain.RoleApplication, error) {
	var a domain.RoleApplication
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *applicationRepo) FindByUser(ctx context.Context, userID uint64) ([]domain.RoleApplication, error) {
	var out []domain.RoleApplication
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("create_time DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *applicationRepo) HasPending(ctx context.Context, userID uint64, t domain.ApplicationType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RoleApplication{}).
		Where("user_id = ? AND application_type = ? AND status = ?", userID, t, domain.ApplicationPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *applicationRepo) Review(ctx context.Context, id uint64, status domain.ApplicationStatus, reviewerID uint64, comment string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.RoleApplication{}).
		Where("id = ? AND status = ?", id, domain.ApplicationPending).
		Updates(map[string]any{
			"status":         status,
			"review_comment": comment,
			"reviewer_id":    reviewerID,
			"review_time":    at,
			"update_time":    at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
