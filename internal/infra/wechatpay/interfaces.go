package wechatpay

import "context"

type ClientInterface interface {
	UnifiedOrder(ctx context.Context, req UnifiedOrderRequest) (*UnifiedOrderResponse, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error)
	ParseNotify(body []byte) (*Notification, error)
}

var _ ClientInterface = (*Client)(nil)
