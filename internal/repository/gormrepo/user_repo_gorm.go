package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type userRepo struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id uint64) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Debit(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *userRepo) Credit(ctx context.Context, id uint64, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("credit user %d: no such user", id)
	}
	return nil
}

func (r *userRepo) GrantRole(ctx context.Context, id uint64, role domain.ApplicationType) error {
	var column string
	switch role {
	case domain.ApplicationDelivery:
		column = "is_delivery"
	case domain.ApplicationReceiver:
		column = "is_receiver"
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	result := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{column: true, "update_time": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("grant %s to user %d: no such user", role, id)
	}
	return nil
}

type shopRepo struct {
	db *gorm.DB
}

func NewShopRepository(db *gorm.DB) repository.ShopRepository {
	return &shopRepo{db: db}
}

func (r *shopRepo) FindByOwner(ctx context.Context, ownerID uint64) (*domain.Shop, error) {
	var s domain.Shop
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
