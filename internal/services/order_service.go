package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/infra/cache"
	rabbit "campus-takeout/internal/infra/rabbitmq"
	"campus-takeout/internal/infra/wechatpay"
	"campus-takeout/internal/repository"

	"go.uber.org/zap"
)

const orderNumberAttempts = 3

type OrderService struct {
	store         repository.Store
	publisher     rabbit.PublisherInterface
	cache         cache.OrderCache
	wechat        wechatpay.ClientInterface
	payments      *PaymentGateway
	log           *zap.Logger
	paymentWindow time.Duration
	now           func() time.Time
}

func NewOrderService(
	store repository.Store,
	publisher rabbit.PublisherInterface,
	orderCache cache.OrderCache,
	wechat wechatpay.ClientInterface,
	log *zap.Logger,
	paymentWindow time.Duration,
) *OrderService {
	if orderCache == nil {
		orderCache = cache.NoopOrderCache{}
	}
	if publisher == nil {
		publisher = rabbit.NoopPublisher{}
	}
	s := &OrderService{
		store:         store,
		publisher:     publisher,
		cache:         orderCache,
		wechat:        wechat,
		log:           log,
		paymentWindow: paymentWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
	s.payments = NewPaymentGateway(store, wechat, log, func() time.Time { return s.now() })
	return s
}

// OrderPage is one page of a newest-first order listing.
type OrderPage struct {
	Orders []domain.Order
	Page   int
	Limit  int
	Total  int64
	Pages  int64
}

func (s *OrderService) Create(ctx context.Context, userID uint64, in domain.CreateOrderInput) (*domain.Order, error) {
	v, err := domain.ValidateCreate(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	orderTime := now
	if v.OrderTime != nil && !v.OrderTime.IsZero() {
		orderTime = v.OrderTime.UTC()
	}
	order := &domain.Order{
		UserID:            userID,
		ShopID:            v.ShopID,
		ShopName:          v.ShopName,
		Items:             v.Items,
		DeliveryAddress:   v.DeliveryAddress,
		DeliveryType:      v.DeliveryType,
		DeliveryTime:      v.DeliveryTime,
		GoodsAmount:       v.GoodsAmount,
		DeliveryFee:       v.DeliveryFee,
		CouponAmount:      v.CouponAmount,
		TotalAmount:       v.TotalAmount,
		Status:            domain.StatusPending,
		PaymentStatus:     domain.PaymentUnpaid,
		PaymentExpireTime: now.Add(s.paymentWindow),
		Remark:            v.Remark,
		OrderTime:         orderTime,
		CreateTime:        now,
		UpdateTime:        now,
	}

	for attempt := 1; ; attempt++ {
		order.OrderNumber = NewOrderNumber(now)
		err = s.store.Orders().Save(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateKey) || attempt == orderNumberAttempts {
			s.log.Error("failed to save order", zap.Uint64("user_id", userID), zap.Error(err))
			return nil, domain.WrapError(domain.KindInternal, "failed to save order", err)
		}
		order.ID = 0
		for i := range order.Items {
			order.Items[i].ID = 0
			order.Items[i].OrderID = 0
		}
	}

	s.log.Info("order created",
		zap.Uint64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))
	s.publish(ctx, domain.EventOrderCreated, domain.NewOrderEvent(order, domain.ActorCustomer, now))
	return order, nil
}

// NewOrderNumber returns "ORD", the timestamp to the second and three random digits.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%s%03d", now.Format("20060102150405"), rand.Intn(1000))
}

func (s *OrderService) Detail(ctx context.Context, userID, orderID uint64) (*domain.Order, error) {
	cached, err := s.cache.Get(ctx, orderID)
	if err != nil {
		s.log.Warn("order cache read failed", zap.Uint64("order_id", orderID), zap.Error(err))
	}
	if cached != nil {
		if cached.UserID != userID {
			return nil, domain.NewError(domain.KindForbidden, "no access to this order")
		}
		return cached, nil
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.NewError(domain.KindForbidden, "no access to this order")
	}
	if err := s.cache.Set(ctx, order); err != nil {
		s.log.Warn("order cache write failed", zap.Uint64("order_id", orderID), zap.Error(err))
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, userID uint64, status domain.OrderStatus, page, limit int) (*OrderPage, error) {
	return s.list(ctx, repository.OrderFilter{UserID: userID, Status: status, Page: page, Limit: limit})
}

func (s *OrderService) list(ctx context.Context, f repository.OrderFilter) (*OrderPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.NewError(domain.KindValidation, "unknown order status %q", f.Status)
	}
	f.Page, f.Limit = repository.NormalizePage(f.Page, f.Limit)
	orders, total, err := s.store.Orders().List(ctx, f)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to list orders", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return &OrderPage{
		Orders: orders,
		Page:   f.Page,
		Limit:  f.Limit,
		Total:  total,
		Pages:  repository.Pages(total, f.Limit),
	}, nil
}

// Cancel cancels the customer's own order. A paid order is refunded.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID uint64, reason string) (*domain.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.NewError(domain.KindForbidden, "no access to this order")
	}
	if err := s.transition(ctx, order, domain.TransitionRequest{
		To:     domain.StatusCancelled,
		Actor:  domain.ActorCustomer,
		Reason: reason,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkPaid settles an order from a payment notification. It is idempotent
// per order number: a second notification for a paid order is a no-op.
func (s *OrderService) MarkPaid(ctx context.Context, orderNumber, transactionID string, method domain.PaymentMethod) (*domain.Order, error) {
	order, err := s.store.Orders().FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order")
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return order, nil
	}
	if order.Status != domain.StatusPending {
		return nil, s.unsettledPayment(order, transactionID, method)
	}

	err = s.transition(ctx, order, domain.TransitionRequest{
		To:         domain.StatusConfirmed,
		Actor:      domain.ActorPayment,
		Settlement: &domain.Settlement{Method: method, TransactionID: transactionID},
	})
	if domain.IsKind(err, domain.KindConflict) {
		latest, ferr := s.store.Orders().FindByNumber(ctx, orderNumber)
		if ferr == nil && latest != nil {
			if latest.PaymentStatus == domain.PaymentPaid {
				return latest, nil
			}
			if latest.Status != domain.StatusPending {
				return nil, s.unsettledPayment(latest, transactionID, method)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// unsettledPayment records money received for an order that can no longer
// take it. The payment has to be refunded by hand.
func (s *OrderService) unsettledPayment(order *domain.Order, transactionID string, method domain.PaymentMethod) error {
	s.log.Warn("payment received for order no longer awaiting payment, refund required",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)),
		zap.String("transaction_id", transactionID),
		zap.String("method", string(method)),
		zap.String("amount", order.TotalAmount.StringFixed(2)))
	return domain.NewError(domain.KindConflict, "order %s is %s and no longer awaits payment", order.OrderNumber, order.Status)
}

// DeliveryUpdateStatus lets the assigned delivery user complete an order.
func (s *OrderService) DeliveryUpdateStatus(ctx context.Context, userID, orderID uint64, to domain.OrderStatus) (*domain.Order, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load user", err)
	}
	if user == nil || !user.IsDelivery {
		return nil, domain.NewError(domain.KindForbidden, "only delivery users may update delivery status")
	}
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.DeliveryUserID == nil || *order.DeliveryUserID != userID {
		return nil, domain.NewError(domain.KindForbidden, "order is not assigned to this delivery user")
	}
	if err := s.transition(ctx, order, domain.TransitionRequest{To: to, Actor: domain.ActorDelivery}); err != nil {
		return nil, err
	}
	return order, nil
}

// ExpiredUnpaid returns up to limit pending, unpaid orders with an id above
// afterID whose deadline is before now.
func (s *OrderService) ExpiredUnpaid(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Order, error) {
	return s.store.Orders().FindExpiredUnpaid(ctx, now, afterID, limit)
}

// ExpireOrder cancels one overdue order. It reports false, without error,
// when the order was paid or cancelled in the meantime.
func (s *OrderService) ExpireOrder(ctx context.Context, order *domain.Order, now time.Time) (bool, error) {
	change, err := domain.PlanTransition(order, domain.TransitionRequest{
		To:    domain.StatusCancelled,
		Actor: domain.ActorSystem,
	}, now)
	if err != nil {
		if domain.IsKind(err, domain.KindConflict) || domain.IsKind(err, domain.KindIllegalTransition) {
			return false, nil
		}
		return false, err
	}
	if err := s.commit(ctx, order, change); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *OrderService) findOrder(ctx context.Context, orderID uint64) (*domain.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order")
	}
	return order, nil
}

// transition plans req against order and commits it. On success order
// reflects the new state.
func (s *OrderService) transition(ctx context.Context, order *domain.Order, req domain.TransitionRequest) error {
	change, err := domain.PlanTransition(order, req, s.now())
	if err != nil {
		return err
	}
	return s.commit(ctx, order, change)
}

// commit applies change as a conditional update. Balance refunds are
// credited in the same transaction; WeChat refunds, cache invalidation and
// events follow the commit.
func (s *OrderService) commit(ctx context.Context, order *domain.Order, change domain.StatusChange) error {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		applied, err := tx.Orders().ApplyChange(ctx, change)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to update order", err)
		}
		if !applied {
			return domain.NewError(domain.KindConflict, "order %s was modified concurrently", order.OrderNumber)
		}
		if change.ToPayment == domain.PaymentRefunded && change.RefundMethod == domain.PaymentMethodBalance {
			if err := tx.Users().Credit(ctx, order.UserID, order.TotalAmount); err != nil {
				return domain.WrapError(domain.KindInternal, "failed to refund balance", err)
			}
		}
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			s.log.Error("order transition failed",
				zap.Uint64("order_id", order.ID),
				zap.String("from", string(change.FromStatus)),
				zap.String("to", string(change.ToStatus)),
				zap.Error(err))
		}
		return err
	}

	if change.ToPayment == domain.PaymentRefunded && change.RefundMethod == domain.PaymentMethodWechat {
		s.refundWechat(ctx, order)
	}
	s.afterApply(ctx, order, change)
	return nil
}

func (s *OrderService) refundWechat(ctx context.Context, order *domain.Order) {
	if s.wechat == nil {
		s.log.Warn("wechat refund skipped, no client", zap.String("order_number", order.OrderNumber))
		return
	}
	resp, err := s.wechat.Refund(ctx, wechatpay.RefundRequest{
		OrderNumber:   order.OrderNumber,
		TransactionID: order.PaymentTransactionID,
		Amount:        order.TotalAmount,
	})
	if err != nil {
		s.log.Error("wechat refund failed, manual refund required",
			zap.String("order_number", order.OrderNumber),
			zap.String("amount", order.TotalAmount.StringFixed(2)),
			zap.Error(err))
		return
	}
	s.log.Info("wechat refund requested",
		zap.String("order_number", order.OrderNumber),
		zap.String("refund_id", resp.RefundID))
}

func (s *OrderService) invalidate(ctx context.Context, orderID uint64) {
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.log.Warn("order cache invalidation failed", zap.Uint64("order_id", orderID), zap.Error(err))
	}
}

func (s *OrderService) afterApply(ctx context.Context, order *domain.Order, change domain.StatusChange) {
	change.ApplyTo(order)
	s.invalidate(ctx, order.ID)

	s.log.Info("order status changed",
		zap.Uint64("order_id", order.ID),
		zap.String("from", string(change.FromStatus)),
		zap.String("to", string(change.ToStatus)),
		zap.String("payment_status", string(change.ToPayment)),
		zap.String("actor", string(change.Actor)))

	key := domain.StatusEventKey(change.ToStatus)
	if change.Settlement != nil {
		key = domain.EventOrderPaid
	}
	s.publish(ctx, key, domain.NewOrderEvent(order, change.Actor, change.At))
}

// publish never fails the caller; a lost event is logged.
func (s *OrderService) publish(ctx context.Context, key string, evt domain.OrderEvent) {
	if err := s.publisher.Publish(ctx, key, evt); err != nil {
		s.log.Warn("failed to publish order event",
			zap.String("routing_key", key),
			zap.Uint64("order_id", evt.OrderID),
			zap.Error(err))
	}
}
