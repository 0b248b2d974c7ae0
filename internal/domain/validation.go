package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountTolerance is the absolute difference accepted between supplied and computed amounts.
var AmountTolerance = decimal.New(1, -2)

type CreateOrderItemInput struct {
	GoodsID   string           `json:"goodsId"`
	GoodsName string           `json:"goodsName"`
	Price     *decimal.Decimal `json:"price"`
	Quantity  *int             `json:"quantity"`
	Specs     string           `json:"specs"`
	Image     string           `json:"image"`
	Subtotal  *decimal.Decimal `json:"subtotal"`
}

type CreateOrderInput struct {
	ShopID          uint64                 `json:"shopId"`
	ShopName        string                 `json:"shopName"`
	Items           []CreateOrderItemInput `json:"orderItems"`
	DeliveryAddress *Address               `json:"deliveryAddress"`
	DeliveryType    DeliveryType           `json:"deliveryType"`
	DeliveryTime    *time.Time             `json:"deliveryTime"`
	GoodsAmount     *decimal.Decimal       `json:"goodsAmount"`
	DeliveryFee     *decimal.Decimal       `json:"deliveryFee"`
	CouponAmount    *decimal.Decimal       `json:"couponAmount"`
	TotalAmount     *decimal.Decimal       `json:"totalAmount"`
	Remark          string                 `json:"remark"`
	OrderTime       *time.Time             `json:"orderTime"`
}

// ValidatedOrder is a creation request whose structure and arithmetic have been checked.
type ValidatedOrder struct {
	ShopID          uint64
	ShopName        string
	Items           []OrderItem
	DeliveryAddress Address
	DeliveryType    DeliveryType
	DeliveryTime    *time.Time
	GoodsAmount     decimal.Decimal
	DeliveryFee     decimal.Decimal
	CouponAmount    decimal.Decimal
	TotalAmount     decimal.Decimal
	Remark          string
	OrderTime       *time.Time
}

// AmountsEqual compares two amounts within AmountTolerance.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}

// ValidateCreate checks a creation request without touching any store.
func ValidateCreate(in CreateOrderInput) (*ValidatedOrder, error) {
	if in.ShopID == 0 || in.ShopName == "" || len(in.Items) == 0 {
		return nil, NewError(KindValidation, "incomplete order: shop or items missing")
	}
	addr := in.DeliveryAddress
	if addr == nil || addr.Name == "" || addr.Phone == "" || addr.Address == "" {
		return nil, NewError(KindValidation, "incomplete delivery address")
	}
	deliveryType := in.DeliveryType
	if deliveryType == "" {
		deliveryType = DeliveryImmediate
	}
	if deliveryType != DeliveryImmediate && deliveryType != DeliveryScheduled {
		return nil, NewError(KindValidation, "unknown delivery type %q", deliveryType)
	}
	if deliveryType == DeliveryScheduled && (in.DeliveryTime == nil || in.DeliveryTime.IsZero()) {
		return nil, NewError(KindValidation, "scheduled delivery requires a delivery time")
	}
	if in.GoodsAmount == nil || in.TotalAmount == nil {
		return nil, NewError(KindValidation, "order amounts missing")
	}
	if !in.TotalAmount.IsPositive() {
		return nil, NewError(KindValidation, "total amount must be greater than 0")
	}
	deliveryFee := orZero(in.DeliveryFee)
	couponAmount := orZero(in.CouponAmount)
	if deliveryFee.IsNegative() || couponAmount.IsNegative() || in.GoodsAmount.IsNegative() {
		return nil, NewError(KindValidation, "amounts must not be negative")
	}

	items := make([]OrderItem, 0, len(in.Items))
	computedGoods := decimal.Zero
	for i, it := range in.Items {
		if it.GoodsID == "" || it.GoodsName == "" || it.Price == nil || it.Quantity == nil || it.Subtotal == nil {
			return nil, NewError(KindValidation, "item %d (%s) is incomplete", i, it.GoodsName)
		}
		if *it.Quantity < 1 {
			return nil, NewError(KindValidation, "item %s quantity must be at least 1", it.GoodsName)
		}
		if it.Price.IsNegative() {
			return nil, NewError(KindValidation, "item %s price must not be negative", it.GoodsName)
		}
		expected := it.Price.Mul(decimal.NewFromInt(int64(*it.Quantity)))
		if !AmountsEqual(*it.Subtotal, expected) {
			return nil, NewError(KindValidation, "item %s subtotal %s does not equal %s x %d",
				it.GoodsName, it.Subtotal.StringFixed(2), it.Price.StringFixed(2), *it.Quantity)
		}
		computedGoods = computedGoods.Add(*it.Subtotal)
		items = append(items, OrderItem{
			GoodsID:   it.GoodsID,
			GoodsName: it.GoodsName,
			Price:     *it.Price,
			Quantity:  *it.Quantity,
			Specs:     it.Specs,
			Image:     it.Image,
			Subtotal:  *it.Subtotal,
		})
	}

	if !AmountsEqual(computedGoods, *in.GoodsAmount) {
		return nil, NewError(KindAmountMismatch, "goods amount %s does not match item total %s",
			in.GoodsAmount.StringFixed(2), computedGoods.StringFixed(2))
	}
	computedTotal := computedGoods.Add(deliveryFee).Sub(couponAmount)
	if !AmountsEqual(computedTotal, *in.TotalAmount) {
		return nil, NewError(KindAmountMismatch, "total amount %s does not match computed total %s",
			in.TotalAmount.StringFixed(2), computedTotal.StringFixed(2))
	}

	v := &ValidatedOrder{
		ShopID:          in.ShopID,
		ShopName:        in.ShopName,
		Items:           items,
		DeliveryAddress: *addr,
		DeliveryType:    deliveryType,
		GoodsAmount:     *in.GoodsAmount,
		DeliveryFee:     deliveryFee,
		CouponAmount:    couponAmount,
		TotalAmount:     *in.TotalAmount,
		Remark:          in.Remark,
		OrderTime:       in.OrderTime,
	}
	if deliveryType == DeliveryScheduled {
		v.DeliveryTime = in.DeliveryTime
	}
	return v, nil
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
