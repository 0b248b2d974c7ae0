package gormrepo

import (
	"context"
	"errors"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository"

	"gorm.io/gorm"
)

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepo{db: db}
}

// Save inserts the order together with its items.
func (r *orderRepo) Save(ctx context.Context, order *domain.Order) error {
	result := r.db.WithContext(ctx).Create(order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateKey
		}
		return result.Error
	}
	if order.ID == 0 {
		return errors.New("failed to assign order ID")
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("order_number = ?", orderNumber).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindByIDs(ctx context.Context, ids []uint64) ([]domain.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Order
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) List(ctx context.Context, f repository.OrderFilter) ([]domain.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Order{})
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.ShopID != 0 {
		query = query.Where("shop_id = ?", f.ShopID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.OrderNumber != "" {
		query = query.Where("order_number LIKE ?", "%"+f.OrderNumber+"%")
	}
	if f.StartDate != nil {
		query = query.Where("create_time >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		query = query.Where("create_time <= ?", *f.EndDate)
	}

	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := repository.NormalizePage(f.Page, f.Limit)
	var orders []domain.Order
	err := query.Preload("Items").
		Order("create_time DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepo) ApplyChange(ctx context.Context, c domain.StatusChange) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?", c.OrderID, c.FromStatus, c.FromPayment).
		Updates(c.Columns())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *orderRepo) SetPrepayID(ctx context.Context, id uint64, prepayID string) error {
	return r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", id).
		Update("prepay_id", prepayID).Error
}

func (r *orderRepo) FindExpiredUnpaid(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND status = ? AND payment_expire_time < ? AND id > ?",
			domain.PaymentUnpaid, domain.StatusPending, now, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
