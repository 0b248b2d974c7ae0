package domain

import (
	"fmt"
	"time"
)

// Actor is whoever drives a status transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorShop     Actor = "shop"
	ActorDelivery Actor = "delivery"
	ActorSystem   Actor = "system"
	ActorPayment  Actor = "payment"
)

type transitionRule struct {
	actors []Actor
	// actors that must supply a cancel reason
	reasonRequired []Actor
}

var transitionTable = map[OrderStatus]map[OrderStatus]transitionRule{
	StatusPending: {
		StatusConfirmed: {actors: []Actor{ActorPayment, ActorShop}},
		StatusCancelled: {actors: []Actor{ActorCustomer, ActorShop, ActorSystem}, reasonRequired: []Actor{ActorShop}},
	},
	StatusConfirmed: {
		StatusPreparing: {actors: []Actor{ActorShop}},
		StatusCancelled: {actors: []Actor{ActorCustomer, ActorShop}, reasonRequired: []Actor{ActorShop}},
	},
	StatusPreparing: {
		StatusDelivering: {actors: []Actor{ActorShop}},
		StatusCancelled:  {actors: []Actor{ActorShop}, reasonRequired: []Actor{ActorShop}},
	},
	StatusDelivering: {
		StatusCompleted: {actors: []Actor{ActorShop, ActorDelivery}},
	},
}

// CanTransition reports whether from -> to is in the transition table for any actor.
func CanTransition(from, to OrderStatus) bool {
	_, ok := transitionTable[from][to]
	return ok
}

// CanTransitionAs reports whether actor may move an order from -> to.
func CanTransitionAs(from, to OrderStatus, actor Actor) bool {
	rule, ok := transitionTable[from][to]
	return ok && containsActor(rule.actors, actor)
}

// Settlement describes a confirmed payment.
type Settlement struct {
	Method        PaymentMethod
	TransactionID string
}

type TransitionRequest struct {
	To             OrderStatus
	Actor          Actor
	Reason         string
	DeliveryUserID *uint64
	Settlement     *Settlement
}

// StatusChange is a planned transition. It is applied as one conditional
// update guarded by FromStatus and FromPayment.
type StatusChange struct {
	OrderID        uint64
	FromStatus     OrderStatus
	FromPayment    PaymentStatus
	ToStatus       OrderStatus
	ToPayment      PaymentStatus
	Actor          Actor
	Reason         string
	DeliveryUserID *uint64
	Settlement     *Settlement
	// payment method to refund when a paid order is cancelled
	RefundMethod PaymentMethod
	At           time.Time
}

// PlanTransition checks req against the transition table and o's current
// state. It never mutates o.
func PlanTransition(o *Order, req TransitionRequest, now time.Time) (StatusChange, error) {
	from := o.Status
	if !CanTransition(from, req.To) {
		return StatusChange{}, IllegalTransition(from, req.To)
	}
	if !CanTransitionAs(from, req.To, req.Actor) {
		e := IllegalTransition(from, req.To)
		e.Message = fmt.Sprintf("%s may not change order status from %s to %s", req.Actor, from, req.To)
		return StatusChange{}, e
	}

	c := StatusChange{
		OrderID:     o.ID,
		FromStatus:  from,
		FromPayment: o.PaymentStatus,
		ToStatus:    req.To,
		ToPayment:   o.PaymentStatus,
		Actor:       req.Actor,
		At:          now,
	}

	switch req.To {
	case StatusConfirmed:
		if req.Actor == ActorPayment {
			if o.PaymentStatus != PaymentUnpaid {
				return StatusChange{}, NewError(KindConflict, "order payment status is %s", o.PaymentStatus)
			}
			if req.Settlement == nil || !req.Settlement.Method.Valid() {
				return StatusChange{}, NewError(KindValidation, "payment settlement missing")
			}
			s := *req.Settlement
			c.Settlement = &s
			c.ToPayment = PaymentPaid
		}
	case StatusCancelled:
		reason := req.Reason
		if reason == "" {
			if containsActor(transitionTable[from][req.To].reasonRequired, req.Actor) {
				return StatusChange{}, NewError(KindValidation, "cancel reason is required")
			}
			switch req.Actor {
			case ActorSystem:
				reason = AutoCancelReason
			default:
				reason = DefaultUserCancelReason
			}
		}
		if req.Actor == ActorSystem && !o.Expired(now) {
			return StatusChange{}, NewError(KindConflict, "order %s is not awaiting payment past its deadline", o.OrderNumber)
		}
		c.Reason = reason
		if o.PaymentStatus == PaymentPaid {
			c.ToPayment = PaymentRefunded
			c.RefundMethod = o.PaymentMethod
		}
	case StatusDelivering:
		c.DeliveryUserID = req.DeliveryUserID
	}
	return c, nil
}

// Columns returns the column assignments for the conditional update.
func (c StatusChange) Columns() map[string]any {
	cols := map[string]any{
		"status":         c.ToStatus,
		"payment_status": c.ToPayment,
		"update_time":    c.At,
	}
	switch c.ToStatus {
	case StatusConfirmed:
		cols["confirm_time"] = c.At
	case StatusDelivering:
		cols["delivery_start_time"] = c.At
		if c.DeliveryUserID != nil {
			cols["delivery_user_id"] = *c.DeliveryUserID
		}
	case StatusCompleted:
		cols["completed_time"] = c.At
	case StatusCancelled:
		cols["cancelled_time"] = c.At
		cols["cancel_reason"] = c.Reason
	}
	if c.Settlement != nil {
		cols["payment_method"] = c.Settlement.Method
		cols["payment_transaction_id"] = c.Settlement.TransactionID
		cols["payment_time"] = c.At
	}
	return cols
}

// ApplyTo mirrors a committed change onto an in-memory order.
func (c StatusChange) ApplyTo(o *Order) {
	at := c.At
	o.Status = c.ToStatus
	o.PaymentStatus = c.ToPayment
	o.UpdateTime = at
	switch c.ToStatus {
	case StatusConfirmed:
		o.ConfirmTime = &at
	case StatusDelivering:
		o.DeliveryStartTime = &at
		if c.DeliveryUserID != nil {
			id := *c.DeliveryUserID
			o.DeliveryUserID = &id
		}
	case StatusCompleted:
		o.CompletedTime = &at
	case StatusCancelled:
		o.CancelledTime = &at
		o.CancelReason = c.Reason
	}
	if c.Settlement != nil {
		o.PaymentMethod = c.Settlement.Method
		o.PaymentTransactionID = c.Settlement.TransactionID
		o.PaymentTime = &at
	}
}

func containsActor(actors []Actor, a Actor) bool {
	for _, x := range actors {
		if x == a {
			return true
		}
	}
	return false
}
