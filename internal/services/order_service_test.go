package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/infra/wechatpay"
	"campus-takeout/internal/mocks"
	"campus-takeout/internal/repository"
	"campus-takeout/internal/repository/gormrepo"
	"campus-takeout/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOrderService_Create(t *testing.T) {
	env := newTestEnv(t)

	o := env.createOrder(t)

	assert.NotZero(t, o.ID)
	assert.Regexp(t, regexp.MustCompile(`^ORD20240501120000\d{3}$`), o.OrderNumber)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.PaymentUnpaid, o.PaymentStatus)
	assert.True(t, o.PaymentExpireTime.Equal(testStart.Add(15*time.Minute)))
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("29.00")))

	stored := env.reload(t, o.ID)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, env.customer.ID, stored.UserID)
	assert.Equal(t, "Dorm 5, Room 301", stored.DeliveryAddress.Address)

	env.pub.AssertCalled(t, "Publish", mock.Anything, domain.EventOrderCreated, mock.MatchedBy(func(e domain.OrderEvent) bool {
		return e.OrderID == o.ID && e.Status == domain.StatusPending
	}))
}

func TestOrderService_Create_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CreateOrderInput)
		kind   domain.Kind
	}{
		{name: "bad subtotal", mutate: func(in *domain.CreateOrderInput) { in.Items[0].Subtotal = d("24.00") }, kind: domain.KindValidation},
		{name: "goods mismatch", mutate: func(in *domain.CreateOrderInput) { in.GoodsAmount = d("30.00") }, kind: domain.KindAmountMismatch},
		{name: "total mismatch", mutate: func(in *domain.CreateOrderInput) { in.TotalAmount = d("30.00") }, kind: domain.KindAmountMismatch},
		{name: "missing address", mutate: func(in *domain.CreateOrderInput) { in.DeliveryAddress = nil }, kind: domain.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := env.createInput()
			tt.mutate(&in)

			_, err := env.svc.Create(context.Background(), env.customer.ID, in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))

			var count int64
			require.NoError(t, env.db.Model(&domain.Order{}).Count(&count).Error)
			assert.Zero(t, count, "nothing is persisted")
			env.pub.AssertNotCalled(t, "Publish", mock.Anything, domain.EventOrderCreated, mock.Anything)
		})
	}
}

type dupOrders struct {
	repository.OrderRepository
	failures int
	calls    int
}

func (r *dupOrders) Save(ctx context.Context, o *domain.Order) error {
	r.calls++
	if r.calls <= r.failures {
		return repository.ErrDuplicateKey
	}
	return r.OrderRepository.Save(ctx, o)
}

type dupStore struct {
	repository.Store
	orders *dupOrders
}

func (s dupStore) Orders() repository.OrderRepository { return s.orders }

func TestOrderService_Create_RetriesOrderNumberCollision(t *testing.T) {
	db := testutil.NewDB(t)
	base := gormrepo.NewStore(db)

	orders := &dupOrders{OrderRepository: base.Orders(), failures: 2}
	svc := NewOrderService(dupStore{Store: base, orders: orders}, nil, nil, nil, zap.NewNop(), testPaymentWindow)
	in := (&testEnv{shop: &domain.Shop{ID: 1, Name: "Canteen"}}).createInput()

	o, err := svc.Create(context.Background(), 1, in)
	require.NoError(t, err)
	assert.Equal(t, 3, orders.calls)
	assert.NotZero(t, o.ID)

	orders.calls, orders.failures = 0, 3
	_, err = svc.Create(context.Background(), 1, in)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, 3, orders.calls)
}

func TestOrderService_Detail(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)
	ctx := context.Background()

	got, err := env.svc.Detail(ctx, env.customer.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
	env.cache.AssertCalled(t, "Set", mock.Anything, mock.MatchedBy(func(c *domain.Order) bool { return c.ID == o.ID }))

	_, err = env.svc.Detail(ctx, env.owner.ID, o.ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = env.svc.Detail(ctx, env.customer.ID, 9999)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestOrderService_Detail_CacheHit(t *testing.T) {
	env := newTestEnv(t)
	cached := &domain.Order{ID: 77, UserID: env.customer.ID, OrderNumber: "ORD-CACHED"}

	orderCache := &mocks.MockOrderCache{}
	orderCache.On("Get", mock.Anything, uint64(77)).Return(cached, nil)
	env.svc.cache = orderCache

	got, err := env.svc.Detail(context.Background(), env.customer.ID, 77)
	require.NoError(t, err)
	assert.Equal(t, "ORD-CACHED", got.OrderNumber)

	_, err = env.svc.Detail(context.Background(), env.owner.ID, 77)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	orderCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestOrderService_Detail_CacheErrorFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)

	orderCache := &mocks.MockOrderCache{}
	orderCache.On("Get", mock.Anything, o.ID).Return(nil, errors.New("redis down"))
	orderCache.On("Set", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	env.svc.cache = orderCache

	got, err := env.svc.Detail(context.Background(), env.customer.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestOrderService_List(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.createOrder(t)
		env.advance(time.Minute)
	}
	ctx := context.Background()

	page, err := env.svc.List(ctx, env.customer.ID, "", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 2, page.Pages)
	require.Len(t, page.Orders, 2)
	assert.True(t, page.Orders[0].CreateTime.After(page.Orders[1].CreateTime), "newest first")

	page, err = env.svc.List(ctx, env.customer.ID, domain.StatusCancelled, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.Total)
	assert.NotNil(t, page.Orders)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, repository.DefaultPageSize, page.Limit)

	_, err = env.svc.List(ctx, env.customer.ID, "lost", 1, 10)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestOrderService_Cancel(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)
	ctx := context.Background()

	_, err := env.svc.Cancel(ctx, env.owner.ID, o.ID, "")
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	env.advance(time.Minute)
	got, err := env.svc.Cancel(ctx, env.customer.ID, o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, domain.DefaultUserCancelReason, got.CancelReason)

	stored := env.reload(t, o.ID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledTime)
	assert.True(t, stored.CancelledTime.Equal(env.now))
	env.pub.AssertCalled(t, "Publish", mock.Anything, "order.cancelled", mock.Anything)
	env.cache.AssertCalled(t, "Invalidate", mock.Anything, o.ID)

	_, err = env.svc.Cancel(ctx, env.customer.ID, o.ID, "")
	assert.Equal(t, domain.KindIllegalTransition, domain.KindOf(err))
}

func TestOrderService_CancelPaidByBalanceRefunds(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)
	env.payBalance(t, o)
	assert.True(t, env.balance(t, env.customer.ID).Equal(decimal.RequireFromString("71.00")))

	got, err := env.svc.Cancel(context.Background(), env.customer.ID, o.ID, "wrong address")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, got.PaymentStatus)

	stored := env.reload(t, o.ID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, domain.PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, "wrong address", stored.CancelReason)
	assert.True(t, env.balance(t, env.customer.ID).Equal(decimal.RequireFromString("100.00")))
	env.wechat.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestOrderService_CancelPaidByWechatRequestsRefund(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)
	_, err := env.svc.MarkPaid(context.Background(), o.OrderNumber, "4200001", domain.PaymentMethodWechat)
	require.NoError(t, err)

	env.wechat.On("Refund", mock.Anything, mock.MatchedBy(func(r wechatpay.RefundRequest) bool {
		return r.OrderNumber == o.OrderNumber && r.TransactionID == "4200001" && r.Amount.Equal(o.TotalAmount)
	})).Return(&wechatpay.RefundResponse{RefundID: "refund_1"}, nil).Once()

	got, err := env.svc.Cancel(context.Background(), env.customer.ID, o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, got.PaymentStatus)
	env.wechat.AssertExpectations(t)
	assert.True(t, env.balance(t, env.customer.ID).Equal(decimal.RequireFromString("100.00")), "balance untouched")
}

func TestOrderService_MarkPaid(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)
	ctx := context.Background()

	got, err := env.svc.MarkPaid(ctx, o.OrderNumber, "4200001", domain.PaymentMethodWechat)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)

	stored := env.reload(t, o.ID)
	assert.Equal(t, domain.PaymentMethodWechat, stored.PaymentMethod)
	assert.Equal(t, "4200001", stored.PaymentTransactionID)
	require.NotNil(t, stored.PaymentTime)
	env.pub.AssertCalled(t, "Publish", mock.Anything, domain.EventOrderPaid, mock.Anything)

	env.advance(time.Minute)
	again, err := env.svc.MarkPaid(ctx, o.OrderNumber, "4200001", domain.PaymentMethodWechat)
	require.NoError(t, err, "duplicate notification is a no-op")
	assert.True(t, again.PaymentTime.Equal(*stored.PaymentTime))

	_, err = env.svc.MarkPaid(ctx, "ORD-MISSING", "x", domain.PaymentMethodWechat)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestOrderService_MarkPaidAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t)
	ctx := context.Background()
	_, err := env.svc.Cancel(ctx, env.customer.ID, o.ID, "")
	require.NoError(t, err)

	_, err = env.svc.MarkPaid(ctx, o.OrderNumber, "4200001", domain.PaymentMethodWechat)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, domain.PaymentUnpaid, env.reload(t, o.ID).PaymentStatus)
}

func TestOrderService_MarkPaidAfterShopConfirm(t *testing.T) {
	env := newTestEnv(t)
	core, logs := observer.New(zap.WarnLevel)
	env.svc.log = zap.New(core)
	o := env.createOrder(t)
	ctx := context.Background()
	_, err := env.svc.ShopUpdateStatus(ctx, env.owner.ID, ShopStatusUpdate{OrderID: o.ID, Status: domain.StatusConfirmed})
	require.NoError(t, err)

	_, err = env.svc.MarkPaid(ctx, o.OrderNumber, "4200001", domain.PaymentMethodWechat)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	stored := env.reload(t, o.ID)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
	assert.Equal(t, domain.PaymentUnpaid, stored.PaymentStatus)

	entries := logs.FilterMessageSnippet("refund required").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, o.OrderNumber, fields["order_number"])
	assert.Equal(t, "4200001", fields["transaction_id"])
	assert.Equal(t, "confirmed", fields["status"])
}

func TestOrderService_FullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.createOrder(t)

	res := env.payBalance(t, o)
	assert.True(t, res.Success)

	_, err := env.svc.ShopUpdateStatus(ctx, env.owner.ID, ShopStatusUpdate{OrderID: o.ID, Status: domain.StatusPreparing})
	require.NoError(t, err)

	_, err = env.svc.ShopUpdateStatus(ctx, env.owner.ID, ShopStatusUpdate{OrderID: o.ID, Status: domain.StatusCompleted})
	assert.Equal(t, domain.KindIllegalTransition, domain.KindOf(err), "preparing cannot jump to completed")

	riderID := env.rider.ID
	got, err := env.svc.ShopUpdateStatus(ctx, env.owner.ID, ShopStatusUpdate{OrderID: o.ID, Status: domain.StatusDelivering, DeliveryUserID: &riderID})
	require.NoError(t, err)
	require.NotNil(t, got.DeliveryUserID)

	_, err = env.svc.DeliveryUpdateStatus(ctx, env.customer.ID, o.ID, domain.StatusCompleted)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err), "customer is not a delivery user")

	env.advance(20 * time.Minute)
	got, err = env.svc.DeliveryUpdateStatus(ctx, env.rider.ID, o.ID, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	stored := env.reload(t, o.ID)
	assert.NotNil(t, stored.ConfirmTime)
	assert.NotNil(t, stored.DeliveryStartTime)
	require.NotNil(t, stored.CompletedTime)
	assert.True(t, stored.CompletedTime.Equal(env.now))

	for _, to := range domain.AllStatuses {
		_, err := env.svc.ShopUpdateStatus(ctx, env.owner.ID, ShopStatusUpdate{OrderID: o.ID, Status: to, Reason: "r"})
		assert.Equal(t, domain.KindIllegalTransition, domain.KindOf(err), "completed -> %s", to)
	}
}

func TestOrderService_DeliveryMustBeAssigned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := testutil.SeedUser(t, env.db, "0")
	require.NoError(t, env.db.Model(other).Update("is_delivery", true).Error)

	o := env.createOrder(t)
	env.payBalance(t, o)
	riderID := env.rider.ID
	for _, st := range []domain.OrderStatus{domain.StatusPreparing, domain.StatusDelivering} {
		_, err := env.svc.ShopUpdateStatus(ctx, env.owner.ID, ShopStatusUpdate{OrderID: o.ID, Status: st, DeliveryUserID: &riderID})
		require.NoError(t, err)
	}

	_, err := env.svc.DeliveryUpdateStatus(ctx, other.ID, o.ID, domain.StatusCompleted)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}
