package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/infra/wechatpay"
	"campus-takeout/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentRequest struct {
	OrderID  uint64
	UserID   uint64
	Method   domain.PaymentMethod
	Amount   decimal.Decimal
	ClientIP string
}

type PaymentResult struct {
	Success bool
	// Pending means the customer still has to confirm with the provider.
	Pending          bool
	AlreadyPaid      bool
	TransactionID    string
	PrepayID         string
	PayParams        map[string]string
	Message          string
	RemainingBalance *decimal.Decimal

	order  *domain.Order
	change *domain.StatusChange
}

var errPaymentRaceLost = errors.New("order changed during payment")

// PaymentGateway settles unpaid orders through WeChat Pay or the user's balance.
type PaymentGateway struct {
	store  repository.Store
	wechat wechatpay.ClientInterface
	log    *zap.Logger
	now    func() time.Time
}

func NewPaymentGateway(store repository.Store, wechat wechatpay.ClientInterface, log *zap.Logger, now func() time.Time) *PaymentGateway {
	return &PaymentGateway{store: store, wechat: wechat, log: log, now: now}
}

func (g *PaymentGateway) Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if !req.Method.Valid() {
		return PaymentResult{}, domain.NewError(domain.KindValidation, "unsupported payment method %q", req.Method)
	}
	order, err := g.store.Orders().FindByID(ctx, req.OrderID)
	if err != nil {
		return PaymentResult{}, domain.WrapError(domain.KindInternal, "failed to load order", err)
	}
	if order == nil {
		return PaymentResult{}, domain.ErrNotFound("order")
	}
	if order.UserID != req.UserID {
		return PaymentResult{}, domain.NewError(domain.KindForbidden, "no access to this order")
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return alreadyPaid(order), nil
	}
	if order.Status != domain.StatusPending || order.PaymentStatus != domain.PaymentUnpaid {
		return PaymentResult{}, domain.IllegalTransition(order.Status, domain.StatusConfirmed)
	}
	if !domain.AmountsEqual(req.Amount, order.TotalAmount) {
		return PaymentResult{}, domain.NewError(domain.KindAmountMismatch,
			"payment amount %s does not match order total %s", req.Amount.StringFixed(2), order.TotalAmount.StringFixed(2))
	}

	switch req.Method {
	case domain.PaymentMethodWechat:
		return g.payWechat(ctx, order, req)
	default:
		return g.payBalance(ctx, order)
	}
}

func alreadyPaid(order *domain.Order) PaymentResult {
	return PaymentResult{
		Success:       true,
		AlreadyPaid:   true,
		TransactionID: order.PaymentTransactionID,
		Message:       "order already paid",
	}
}

// payWechat places a unified order. The order stays pending until the
// provider's notification is passed to OrderService.MarkPaid.
func (g *PaymentGateway) payWechat(ctx context.Context, order *domain.Order, req PaymentRequest) (PaymentResult, error) {
	if g.wechat == nil {
		return PaymentResult{}, domain.NewError(domain.KindInternal, "wechat pay is not configured")
	}
	resp, err := g.wechat.UnifiedOrder(ctx, wechatpay.UnifiedOrderRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Description: fmt.Sprintf("campus takeout order %s", order.OrderNumber),
		ClientIP:    req.ClientIP,
	})
	if err != nil {
		g.log.Error("wechat unified order failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
		return PaymentResult{}, domain.WrapError(domain.KindInternal, "wechat payment failed", err)
	}
	if err := g.store.Orders().SetPrepayID(ctx, order.ID, resp.PrepayID); err != nil {
		return PaymentResult{}, domain.WrapError(domain.KindInternal, "failed to record prepay id", err)
	}
	order.PrepayID = resp.PrepayID

	g.log.Info("wechat prepay created",
		zap.String("order_number", order.OrderNumber),
		zap.String("prepay_id", resp.PrepayID))
	return PaymentResult{
		Success:   true,
		Pending:   true,
		PrepayID:  resp.PrepayID,
		PayParams: resp.PayParams,
		Message:   "awaiting wechat payment",
	}, nil
}

// payBalance debits the user and settles the order in one transaction.
// If the order no longer matches, the debit is rolled back.
func (g *PaymentGateway) payBalance(ctx context.Context, order *domain.Order) (PaymentResult, error) {
	now := g.now()
	change, err := domain.PlanTransition(order, domain.TransitionRequest{
		To:    domain.StatusConfirmed,
		Actor: domain.ActorPayment,
		Settlement: &domain.Settlement{
			Method:        domain.PaymentMethodBalance,
			TransactionID: "BAL" + wechatpay.NonceStr()[:20],
		},
	}, now)
	if err != nil {
		return PaymentResult{}, err
	}

	var remaining decimal.Decimal
	err = g.store.Transaction(ctx, func(tx repository.Store) error {
		ok, err := tx.Users().Debit(ctx, order.UserID, order.TotalAmount)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to debit balance", err)
		}
		if !ok {
			user, err := tx.Users().FindByID(ctx, order.UserID)
			if err != nil {
				return domain.WrapError(domain.KindInternal, "failed to load user", err)
			}
			if user == nil {
				return domain.ErrNotFound("user")
			}
			return domain.NewError(domain.KindInsufficientFunds, "balance %s is less than %s",
				user.Balance.StringFixed(2), order.TotalAmount.StringFixed(2))
		}

		applied, err := tx.Orders().ApplyChange(ctx, change)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to update order", err)
		}
		if !applied {
			return errPaymentRaceLost
		}

		user, err := tx.Users().FindByID(ctx, order.UserID)
		if err != nil {
			return domain.WrapError(domain.KindInternal, "failed to load user", err)
		}
		remaining = user.Balance
		return nil
	})

	if errors.Is(err, errPaymentRaceLost) {
		latest, ferr := g.store.Orders().FindByID(ctx, order.ID)
		if ferr == nil && latest != nil && latest.PaymentStatus == domain.PaymentPaid {
			return alreadyPaid(latest), nil
		}
		return PaymentResult{}, domain.NewError(domain.KindConflict, "order %s changed during payment", order.OrderNumber)
	}
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			g.log.Error("balance payment failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		}
		return PaymentResult{}, err
	}

	return PaymentResult{
		Success:          true,
		TransactionID:    change.Settlement.TransactionID,
		Message:          "paid with balance",
		RemainingBalance: &remaining,
		order:            order,
		change:           &change,
	}, nil
}

// Pay runs the payment for the customer's order and, when it settled,
// publishes the change.
func (s *OrderService) Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	res, err := s.payments.Pay(ctx, req)
	if err != nil {
		return res, err
	}
	switch {
	case res.change != nil:
		s.afterApply(ctx, res.order, *res.change)
	case res.PrepayID != "":
		s.invalidate(ctx, req.OrderID)
	}
	return res, nil
}

// SettleNotification applies a verified WeChat payment callback. A notice
// whose fee differs from the order total is rejected.
func (s *OrderService) SettleNotification(ctx context.Context, n *wechatpay.Notification) (*domain.Order, error) {
	if !n.Success {
		return nil, domain.NewError(domain.KindValidation, "payment for %s did not succeed", n.OrderNumber)
	}
	order, err := s.store.Orders().FindByNumber(ctx, n.OrderNumber)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order")
	}
	if n.TotalFee != 0 && n.TotalFee != wechatpay.Fen(order.TotalAmount) {
		s.log.Error("payment notify amount mismatch",
			zap.String("order_number", n.OrderNumber),
			zap.Int64("total_fee", n.TotalFee),
			zap.String("total_amount", order.TotalAmount.StringFixed(2)))
		return nil, domain.NewError(domain.KindAmountMismatch, "notified fee %d does not match order total", n.TotalFee)
	}
	return s.MarkPaid(ctx, n.OrderNumber, n.TransactionID, domain.PaymentMethodWechat)
}
