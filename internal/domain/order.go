package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusPreparing  OrderStatus = "preparing"
	StatusDelivering OrderStatus = "delivering"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

var AllStatuses = []OrderStatus{
	StatusPending, StatusConfirmed, StatusPreparing,
	StatusDelivering, StatusCompleted, StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodWechat  PaymentMethod = "wechat"
	PaymentMethodBalance PaymentMethod = "balance"
	PaymentMethodCash    PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodWechat || m == PaymentMethodBalance
}

type DeliveryType string

const (
	DeliveryImmediate DeliveryType = "immediate"
	DeliveryScheduled DeliveryType = "scheduled"
)

// UnmarshalJSON accepts both the named form and the mini-program's 0/1 form.
func (d *DeliveryType) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		switch n {
		case 0:
			*d = DeliveryImmediate
		case 1:
			*d = DeliveryScheduled
		default:
			return fmt.Errorf("unknown delivery type %d", n)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch DeliveryType(s) {
	case "", DeliveryImmediate:
		*d = DeliveryImmediate
	case DeliveryScheduled:
		*d = DeliveryScheduled
	default:
		return fmt.Errorf("unknown delivery type %q", s)
	}
	return nil
}

// AutoCancelReason is stamped on orders reaped by the expiry sweep.
const AutoCancelReason = "payment timeout auto-cancel"

// DefaultUserCancelReason is used when a customer cancels without a reason.
const DefaultUserCancelReason = "cancelled by user"

type Address struct {
	Name      string  `json:"name" gorm:"type:varchar(64);not null"`
	Phone     string  `json:"phone" gorm:"type:varchar(32);not null"`
	Address   string  `json:"address" gorm:"type:varchar(255);not null"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type OrderItem struct {
	ID        uint64          `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64          `json:"-" gorm:"not null;index"`
	GoodsID   string          `json:"goodsId" gorm:"type:varchar(64);not null"`
	GoodsName string          `json:"goodsName" gorm:"type:varchar(128);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	Specs     string          `json:"specs" gorm:"type:varchar(255)"`
	Image     string          `json:"image" gorm:"type:varchar(255)"`
	Subtotal  decimal.Decimal `json:"subtotal" gorm:"type:decimal(10,2);not null"`
}

type Order struct {
	ID             uint64      `json:"orderId" gorm:"primaryKey;autoIncrement"`
	OrderNumber    string      `json:"orderNumber" gorm:"type:varchar(32);uniqueIndex;not null"`
	UserID         uint64      `json:"userId" gorm:"not null;index"`
	ShopID         uint64      `json:"shopId" gorm:"not null;index"`
	ShopName       string      `json:"shopName" gorm:"type:varchar(128);not null"`
	DeliveryUserID *uint64     `json:"deliveryUserId" gorm:"index"`
	Items          []OrderItem `json:"orderItems" gorm:"foreignKey:OrderID"`

	DeliveryAddress Address      `json:"deliveryAddress" gorm:"embedded;embeddedPrefix:delivery_"`
	DeliveryType    DeliveryType `json:"deliveryType" gorm:"type:varchar(16);not null"`
	DeliveryTime    *time.Time   `json:"deliveryTime"`

	GoodsAmount  decimal.Decimal `json:"goodsAmount" gorm:"type:decimal(10,2);not null"`
	DeliveryFee  decimal.Decimal `json:"deliveryFee" gorm:"type:decimal(10,2);not null"`
	CouponAmount decimal.Decimal `json:"couponAmount" gorm:"type:decimal(10,2);not null"`
	TotalAmount  decimal.Decimal `json:"totalAmount" gorm:"type:decimal(10,2);not null"`

	Status               OrderStatus   `json:"status" gorm:"type:varchar(16);not null;index:idx_expiry,priority:2"`
	PaymentStatus        PaymentStatus `json:"paymentStatus" gorm:"type:varchar(16);not null;index:idx_expiry,priority:1"`
	PaymentMethod        PaymentMethod `json:"paymentMethod" gorm:"type:varchar(16)"`
	PaymentTransactionID string        `json:"paymentTransactionId" gorm:"type:varchar(64)"`
	PrepayID             string        `json:"prepayId" gorm:"type:varchar(64)"`
	PaymentTime          *time.Time    `json:"paymentTime"`
	PaymentExpireTime    time.Time     `json:"paymentExpireTime" gorm:"not null;index:idx_expiry,priority:3"`

	Remark       string `json:"remark" gorm:"type:varchar(255)"`
	CancelReason string `json:"cancelReason" gorm:"type:varchar(255)"`

	OrderTime         time.Time  `json:"orderTime" gorm:"not null"`
	ConfirmTime       *time.Time `json:"confirmTime"`
	DeliveryStartTime *time.Time `json:"deliveryStartTime"`
	CompletedTime     *time.Time `json:"completedTime"`
	CancelledTime     *time.Time `json:"cancelledTime"`
	CreateTime        time.Time  `json:"createTime" gorm:"not null;index"`
	UpdateTime        time.Time  `json:"updateTime" gorm:"not null"`
}

func (Order) TableName() string {
	return "orders"
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Expired reports whether the order is still awaiting payment past its deadline.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == StatusPending && o.PaymentStatus == PaymentUnpaid && o.PaymentExpireTime.Before(now)
}
