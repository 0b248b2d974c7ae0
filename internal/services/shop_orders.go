package services

import (
	"context"
	"errors"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/repository"

	"go.uber.org/zap"
)

type ShopOrderQuery struct {
	Status      domain.OrderStatus
	OrderNumber string
	StartDate   *time.Time
	EndDate     *time.Time
	Page        int
	Limit       int
}

type ShopStatusUpdate struct {
	OrderID        uint64
	Status         domain.OrderStatus
	Reason         string
	DeliveryUserID *uint64
}

type BatchAction string

const (
	BatchConfirm BatchAction = "confirm"
	BatchCancel  BatchAction = "cancel"
	BatchPrepare BatchAction = "prepare"
)

var batchTargets = map[BatchAction]domain.OrderStatus{
	BatchConfirm: domain.StatusConfirmed,
	BatchCancel:  domain.StatusCancelled,
	BatchPrepare: domain.StatusPreparing,
}

type BatchSuccess struct {
	OrderID     uint64             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	Status      domain.OrderStatus `json:"status"`
}

type BatchFailure struct {
	OrderID     uint64 `json:"orderId"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Error       string `json:"error"`
}

type BatchResult struct {
	Total        int `json:"total"`
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
	Results      struct {
		Success []BatchSuccess `json:"success"`
		Failed  []BatchFailure `json:"failed"`
	} `json:"results"`
}

func (s *OrderService) shopOf(ctx context.Context, ownerID uint64) (*domain.Shop, error) {
	shop, err := s.store.Shops().FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load shop", err)
	}
	if shop == nil {
		return nil, domain.NewError(domain.KindForbidden, "account does not operate a shop")
	}
	return shop, nil
}

func (s *OrderService) shopOrder(ctx context.Context, ownerID, orderID uint64) (*domain.Order, error) {
	shop, err := s.shopOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShopID != shop.ID {
		return nil, domain.NewError(domain.KindForbidden, "order does not belong to this shop")
	}
	return order, nil
}

func (s *OrderService) ShopOrders(ctx context.Context, ownerID uint64, q ShopOrderQuery) (*OrderPage, error) {
	shop, err := s.shopOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, repository.OrderFilter{
		ShopID:      shop.ID,
		Status:      q.Status,
		OrderNumber: q.OrderNumber,
		StartDate:   q.StartDate,
		EndDate:     q.EndDate,
		Page:        q.Page,
		Limit:       q.Limit,
	})
}

func (s *OrderService) ShopDetail(ctx context.Context, ownerID, orderID uint64) (*domain.Order, error) {
	return s.shopOrder(ctx, ownerID, orderID)
}

func (s *OrderService) ShopUpdateStatus(ctx context.Context, ownerID uint64, u ShopStatusUpdate) (*domain.Order, error) {
	if !u.Status.Valid() {
		return nil, domain.NewError(domain.KindValidation, "unknown order status %q", u.Status)
	}
	order, err := s.shopOrder(ctx, ownerID, u.OrderID)
	if err != nil {
		return nil, err
	}
	if u.DeliveryUserID != nil {
		if err := s.checkDeliveryUser(ctx, *u.DeliveryUserID); err != nil {
			return nil, err
		}
	}
	if err := s.transition(ctx, order, domain.TransitionRequest{
		To:             u.Status,
		Actor:          domain.ActorShop,
		Reason:         u.Reason,
		DeliveryUserID: u.DeliveryUserID,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) checkDeliveryUser(ctx context.Context, userID uint64) error {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "failed to load delivery user", err)
	}
	if user == nil || !user.IsDelivery {
		return domain.NewError(domain.KindValidation, "user %d is not a delivery user", userID)
	}
	return nil
}

// ShopBatchUpdate applies action to each order independently. Per-order
// failures are reported in the result; only bad input fails the call.
func (s *OrderService) ShopBatchUpdate(ctx context.Context, ownerID uint64, orderIDs []uint64, action BatchAction, reason string) (*BatchResult, error) {
	to, ok := batchTargets[action]
	if !ok {
		return nil, domain.NewError(domain.KindValidation, "unknown batch action %q", action)
	}
	if len(orderIDs) == 0 {
		return nil, domain.NewError(domain.KindValidation, "no orders selected")
	}
	if action == BatchCancel && reason == "" {
		return nil, domain.NewError(domain.KindValidation, "cancel reason is required")
	}
	shop, err := s.shopOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ids := dedupe(orderIDs)
	orders, err := s.store.Orders().FindByIDs(ctx, ids)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load orders", err)
	}
	byID := make(map[uint64]*domain.Order, len(orders))
	for i := range orders {
		byID[orders[i].ID] = &orders[i]
	}

	res := &BatchResult{Total: len(ids)}
	res.Results.Success = []BatchSuccess{}
	res.Results.Failed = []BatchFailure{}
	for _, id := range ids {
		order, found := byID[id]
		switch {
		case !found:
			res.Results.Failed = append(res.Results.Failed, BatchFailure{OrderID: id, Error: "order not found"})
			continue
		case order.ShopID != shop.ID:
			res.Results.Failed = append(res.Results.Failed, BatchFailure{OrderID: id, Error: "order does not belong to this shop"})
			continue
		}

		err := s.transition(ctx, order, domain.TransitionRequest{To: to, Actor: domain.ActorShop, Reason: reason})
		if err != nil {
			res.Results.Failed = append(res.Results.Failed, BatchFailure{
				OrderID:     id,
				OrderNumber: order.OrderNumber,
				Error:       errorMessage(err),
			})
			continue
		}
		res.Results.Success = append(res.Results.Success, BatchSuccess{
			OrderID:     id,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
		})
	}
	res.SuccessCount = len(res.Results.Success)
	res.FailedCount = len(res.Results.Failed)

	s.log.Info("shop batch update",
		zap.Uint64("shop_id", shop.ID),
		zap.String("action", string(action)),
		zap.Int("success", res.SuccessCount),
		zap.Int("failed", res.FailedCount))
	return res, nil
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// errorMessage hides internal causes from per-item batch results.
func errorMessage(err error) string {
	var e *domain.Error
	if errors.As(err, &e) && e.Kind != domain.KindInternal {
		return e.Message
	}
	return "internal error"
}
