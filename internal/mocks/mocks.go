package mocks

import (
	"context"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/infra/wechatpay"

	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	args := m.Called(ctx, routingKey, data)
	return args.Error(0)
}

type MockOrderCache struct {
	mock.Mock
}

func (m *MockOrderCache) Get(ctx context.Context, orderID uint64) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderCache) Set(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderCache) Invalidate(ctx context.Context, orderID uint64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockWechatClient struct {
	mock.Mock
}

func (m *MockWechatClient) UnifiedOrder(ctx context.Context, req wechatpay.UnifiedOrderRequest) (*wechatpay.UnifiedOrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wechatpay.UnifiedOrderResponse), args.Error(1)
}

func (m *MockWechatClient) Refund(ctx context.Context, req wechatpay.RefundRequest) (*wechatpay.RefundResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wechatpay.RefundResponse), args.Error(1)
}

func (m *MockWechatClient) ParseNotify(body []byte) (*wechatpay.Notification, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wechatpay.Notification), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

type MockExpirer struct {
	mock.Mock
}

func (m *MockExpirer) ExpiredUnpaid(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Order, error) {
	args := m.Called(ctx, now, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockExpirer) ExpireOrder(ctx context.Context, order *domain.Order, now time.Time) (bool, error) {
	args := m.Called(ctx, order, now)
	return args.Bool(0), args.Error(1)
}
