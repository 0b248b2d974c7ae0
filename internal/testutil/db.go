// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository/gormrepo"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory sqlite database private to t.
// The pool holds a single connection so every statement sees the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(gormrepo.Models()...))
	return db
}

func SeedUser(t *testing.T, db *gorm.DB, balance string) *domain.User {
	t.Helper()
	u := &domain.User{Nickname: "user", Phone: "13800000000", Balance: decimal.RequireFromString(balance), Status: 1}
	require.NoError(t, db.Create(u).Error)
	return u
}

func SeedShop(t *testing.T, db *gorm.DB, ownerID uint64) *domain.Shop {
	t.Helper()
	s := &domain.Shop{Name: "Canteen No.1", OwnerID: ownerID, Status: 1}
	require.NoError(t, db.Create(s).Error)
	return s
}

// NewOrder builds an unsaved pending/unpaid order for 2 x 12.50 plus a 2.00 delivery fee.
func NewOrder(userID, shopID uint64, number string, createdAt time.Time, window time.Duration) *domain.Order {
	price := decimal.RequireFromString("12.50")
	return &domain.Order{
		OrderNumber: number,
		UserID:      userID,
		ShopID:      shopID,
		ShopName:    "Canteen No.1",
		Items: []domain.OrderItem{
			{GoodsID: "g1", GoodsName: "Braised pork rice", Price: price, Quantity: 2, Subtotal: price.Mul(decimal.NewFromInt(2))},
		},
		DeliveryAddress:   domain.Address{Name: "Li", Phone: "13800000000", Address: "Dorm 5, Room 301"},
		DeliveryType:      domain.DeliveryImmediate,
		GoodsAmount:       decimal.RequireFromString("25.00"),
		DeliveryFee:       decimal.RequireFromString("2.00"),
		CouponAmount:      decimal.Zero,
		TotalAmount:       decimal.RequireFromString("27.00"),
		Status:            domain.StatusPending,
		PaymentStatus:     domain.PaymentUnpaid,
		PaymentExpireTime: createdAt.Add(window),
		OrderTime:         createdAt,
		CreateTime:        createdAt,
		UpdateTime:        createdAt,
	}
}

func SeedOrder(t *testing.T, db *gorm.DB, o *domain.Order) *domain.Order {
	t.Helper()
	require.NoError(t, db.Create(o).Error)
	return o
}
