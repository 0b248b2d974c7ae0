package services

import (
	"context"
	"testing"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/mocks"
	"campus-takeout/internal/repository"
	"campus-takeout/internal/repository/gormrepo"
	"campus-takeout/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testPaymentWindow = 15 * time.Minute

type testEnv struct {
	db     *gorm.DB
	store  repository.Store
	pub    *mocks.MockPublisher
	cache  *mocks.MockOrderCache
	wechat *mocks.MockWechatClient
	svc    *OrderService
	now    time.Time

	customer *domain.User
	owner    *domain.User
	rider    *domain.User
	shop     *domain.Shop
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	env := &testEnv{
		db:     db,
		store:  gormrepo.NewStore(db),
		pub:    &mocks.MockPublisher{},
		cache:  &mocks.MockOrderCache{},
		wechat: &mocks.MockWechatClient{},
		now:    testStart,
	}
	env.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.cache.On("Get", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	env.cache.On("Set", mock.Anything, mock.Anything).Return(nil).Maybe()
	env.cache.On("Invalidate", mock.Anything, mock.Anything).Return(nil).Maybe()

	env.svc = NewOrderService(env.store, env.pub, env.cache, env.wechat, zap.NewNop(), testPaymentWindow)
	env.svc.now = func() time.Time { return env.now }

	env.customer = testutil.SeedUser(t, db, "100.00")
	env.owner = testutil.SeedUser(t, db, "0")
	env.rider = testutil.SeedUser(t, db, "0")
	require.NoError(t, db.Model(env.rider).Update("is_delivery", true).Error)
	env.shop = testutil.SeedShop(t, db, env.owner.ID)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func qty(n int) *int { return &n }

// createInput is 2 x 12.50 + 1 x 3.00, a 2.00 delivery fee and a 1.00 coupon: 29.00 total.
func (e *testEnv) createInput() domain.CreateOrderInput {
	return domain.CreateOrderInput{
		ShopID:   e.shop.ID,
		ShopName: e.shop.Name,
		Items: []domain.CreateOrderItemInput{
			{GoodsID: "g1", GoodsName: "Braised pork rice", Price: d("12.50"), Quantity: qty(2), Subtotal: d("25.00")},
			{GoodsID: "g2", GoodsName: "Lemon tea", Price: d("3.00"), Quantity: qty(1), Subtotal: d("3.00")},
		},
		DeliveryAddress: &domain.Address{Name: "Li", Phone: "13800000000", Address: "Dorm 5, Room 301"},
		DeliveryType:    domain.DeliveryImmediate,
		GoodsAmount:     d("28.00"),
		DeliveryFee:     d("2.00"),
		CouponAmount:    d("1.00"),
		TotalAmount:     d("29.00"),
	}
}

func (e *testEnv) createOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := e.svc.Create(context.Background(), e.customer.ID, e.createInput())
	require.NoError(t, err)
	return o
}

func (e *testEnv) payBalance(t *testing.T, o *domain.Order) PaymentResult {
	t.Helper()
	res, err := e.svc.Pay(context.Background(), PaymentRequest{
		OrderID: o.ID,
		UserID:  o.UserID,
		Method:  domain.PaymentMethodBalance,
		Amount:  o.TotalAmount,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) reload(t *testing.T, id uint64) *domain.Order {
	t.Helper()
	o, err := e.store.Orders().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (e *testEnv) balance(t *testing.T, userID uint64) decimal.Decimal {
	t.Helper()
	u, err := e.store.Users().FindByID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.Balance
}
