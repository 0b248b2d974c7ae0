package gormrepo

import (
	"context"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository"

	"gorm.io/gorm"
)

type store struct {
	db           *gorm.DB
	orders       repository.OrderRepository
	users        repository.UserRepository
	shops        repository.ShopRepository
	applications repository.ApplicationRepository
}

func NewStore(db *gorm.DB) repository.Store {
	return &store{
		db:           db,
		orders:       NewOrderRepository(db),
		users:        NewUserRepository(db),
		shops:        NewShopRepository(db),
		applications: NewApplicationRepository(db),
	}
}

func (s *store) Orders() repository.OrderRepository             { return s.orders }
func (s *store) Users() repository.UserRepository               { return s.users }
func (s *store) Shops() repository.ShopRepository               { return s.shops }
func (s *store) Applications() repository.ApplicationRepository { return s.applications }

// Transaction runs fn against a store bound to one database transaction.
// Any error returned by fn rolls the transaction back.
func (s *store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Shop{},
		&domain.Order{},
		&domain.OrderItem{},
		&domain.RoleApplication{},
	}
}
