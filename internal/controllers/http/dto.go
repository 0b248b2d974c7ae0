package http

import (
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/services"

	"github.com/shopspring/decimal"
)

type OrderIDRequest struct {
	OrderID uint64 `json:"orderId" binding:"required"`
}

type ListOrdersRequest struct {
	Status domain.OrderStatus `json:"status" binding:"omitempty,order_status"`
	Page   int                `json:"page" binding:"omitempty,min=1"`
	Limit  int                `json:"limit" binding:"omitempty,min=1"`
}

type CancelOrderRequest struct {
	OrderID uint64 `json:"orderId" binding:"required"`
	Reason  string `json:"reason" binding:"max=255"`
}

type PayOrderRequest struct {
	OrderID       uint64               `json:"orderId" binding:"required"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod" binding:"required,payment_method"`
	Amount        *decimal.Decimal     `json:"amount" binding:"required"`
}

type UpdateStatusRequest struct {
	OrderID uint64             `json:"orderId" binding:"required"`
	Status  domain.OrderStatus `json:"status" binding:"required,order_status"`
}

type ShopOrdersRequest struct {
	Status      domain.OrderStatus `json:"status" binding:"omitempty,order_status"`
	OrderNumber string             `json:"orderNumber"`
	StartDate   *time.Time         `json:"startDate"`
	EndDate     *time.Time         `json:"endDate"`
	Page        int                `json:"page" binding:"omitempty,min=1"`
	Limit       int                `json:"limit" binding:"omitempty,min=1"`
}

type ShopUpdateStatusRequest struct {
	OrderID        uint64             `json:"orderId" binding:"required"`
	Status         domain.OrderStatus `json:"status" binding:"required,order_status"`
	Reason         string             `json:"reason" binding:"max=255"`
	DeliveryUserID *uint64            `json:"deliveryUserId"`
}

type BatchUpdateRequest struct {
	OrderIDs []uint64 `json:"orderIds" binding:"required,min=1,dive,required"`
	Action   string   `json:"action" binding:"required,oneof=confirm cancel prepare"`
	Reason   string   `json:"reason" binding:"max=255"`
}

type ApplyRequest struct {
	RealName       string `json:"realName"`
	IDNumber       string `json:"idNumber"`
	StudentNumber  string `json:"studentNumber"`
	Phone          string `json:"phone"`
	IDCardFrontURL string `json:"idCardFrontUrl"`
	IDCardBackURL  string `json:"idCardBackUrl"`
}

func (r ApplyRequest) form() services.ApplicationForm {
	return services.ApplicationForm{
		RealName:       r.RealName,
		IDNumber:       r.IDNumber,
		StudentNumber:  r.StudentNumber,
		Phone:          r.Phone,
		IDCardFrontURL: r.IDCardFrontURL,
		IDCardBackURL:  r.IDCardBackURL,
	}
}

type ReviewRequest struct {
	ApplicationID uint64 `json:"applicationId" binding:"required"`
	Action        string `json:"action" binding:"required,oneof=approve reject"`
	Comment       string `json:"comment" binding:"max=255"`
}

type CreateOrderResponse struct {
	OrderID           uint64               `json:"orderId"`
	OrderNumber       string               `json:"orderNumber"`
	TotalAmount       decimal.Decimal      `json:"totalAmount"`
	Status            domain.OrderStatus   `json:"status"`
	PaymentStatus     domain.PaymentStatus `json:"paymentStatus"`
	CreateTime        time.Time            `json:"createTime"`
	PaymentExpireTime time.Time            `json:"paymentExpireTime"`
}

func newCreateOrderResponse(o *domain.Order) CreateOrderResponse {
	return CreateOrderResponse{
		OrderID:           o.ID,
		OrderNumber:       o.OrderNumber,
		TotalAmount:       o.TotalAmount,
		Status:            o.Status,
		PaymentStatus:     o.PaymentStatus,
		CreateTime:        o.CreateTime,
		PaymentExpireTime: o.PaymentExpireTime,
	}
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type OrderListResponse struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

func newOrderListResponse(p *services.OrderPage) OrderListResponse {
	return OrderListResponse{
		Orders:     p.Orders,
		Pagination: Pagination{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages},
	}
}

// StatusResponse is returned after a status change.
type StatusResponse struct {
	OrderID       uint64               `json:"orderId"`
	OrderNumber   string               `json:"orderNumber"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	UpdateTime    time.Time            `json:"updateTime"`
}

func newStatusResponse(o *domain.Order) StatusResponse {
	return StatusResponse{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		UpdateTime:    o.UpdateTime,
	}
}

type PayResponse struct {
	OrderID          uint64            `json:"orderId"`
	Pending          bool              `json:"pending"`
	AlreadyPaid      bool              `json:"alreadyPaid"`
	TransactionID    string            `json:"transactionId,omitempty"`
	PrepayID         string            `json:"prepayId,omitempty"`
	PayParams        map[string]string `json:"payParams,omitempty"`
	RemainingBalance *decimal.Decimal  `json:"remainingBalance,omitempty"`
}

func newPayResponse(orderID uint64, r services.PaymentResult) PayResponse {
	return PayResponse{
		OrderID:          orderID,
		Pending:          r.Pending,
		AlreadyPaid:      r.AlreadyPaid,
		TransactionID:    r.TransactionID,
		PrepayID:         r.PrepayID,
		PayParams:        r.PayParams,
		RemainingBalance: r.RemainingBalance,
	}
}
