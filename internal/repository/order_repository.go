package repository

import (
	"context"
	"errors"
	"time"

	"campus-takeout/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrDuplicateKey is returned by Save when a unique column already holds the value.
var ErrDuplicateKey = errors.New("duplicate key")

type OrderFilter struct {
	UserID      uint64
	ShopID      uint64
	Status      domain.OrderStatus
	OrderNumber string // substring match
	StartDate   *time.Time
	EndDate     *time.Time
	Page        int
	Limit       int
}

type OrderRepository interface {
	Save(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	FindByIDs(ctx context.Context, ids []uint64) ([]domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int64, error)
	// ApplyChange performs the conditional update for c. It reports false,
	// without error, when the order no longer matches c's prior state.
	ApplyChange(ctx context.Context, c domain.StatusChange) (bool, error)
	SetPrepayID(ctx context.Context, id uint64, prepayID string) error
	// FindExpiredUnpaid pages through overdue pending orders in id order,
	// starting after afterID.
	FindExpiredUnpaid(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Order, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.User, error)
	// Debit subtracts amount only if the balance covers it; false means it did not.
	Debit(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error)
	Credit(ctx context.Context, id uint64, amount decimal.Decimal) error
	GrantRole(ctx context.Context, id uint64, role domain.ApplicationType) error
}

type ShopRepository interface {
	FindByOwner(ctx context.Context, ownerID uint64) (*domain.Shop, error)
}

type ApplicationRepository interface {
	Save(ctx context.Context, app *domain.RoleApplication) error
	FindByID(ctx context.Context, id uint64) (*domain.RoleApplication, error)
	FindByUser(ctx context.Context, userID uint64) ([]domain.RoleApplication, error)
	HasPending(ctx context.Context, userID uint64, t domain.ApplicationType) (bool, error)
	// Review moves a pending application to status; false means it was not pending.
	Review(ctx context.Context, id uint64, status domain.ApplicationStatus, reviewerID uint64, comment string, at time.Time) (bool, error)
}

// Store groups the repositories and runs work inside one transaction.
type Store interface {
	Orders() OrderRepository
	Users() UserRepository
	Shops() ShopRepository
	Applications() ApplicationRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
