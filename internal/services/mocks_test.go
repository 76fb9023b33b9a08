package services

import (
	"context"

	"github.com/creatorcall/backend/internal/processor"
	"github.com/stretchr/testify/mock"
)

type MockProcessorClient struct {
	mock.Mock
}

func (m *MockProcessorClient) CreatePaymentIntent(ctx context.Context, req processor.IntentRequest) (*processor.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Intent), args.Error(1)
}

func (m *MockProcessorClient) CreatePayout(ctx context.Context, req processor.PayoutRequest) (*processor.Transfer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Transfer), args.Error(1)
}

func (m *MockProcessorClient) GetPayout(ctx context.Context, payoutID string) (*processor.Transfer, error) {
	args := m.Called(ctx, payoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Transfer), args.Error(1)
}

func (m *MockProcessorClient) GetAccountStatus(ctx context.Context, accountID string) (*processor.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.AccountStatus), args.Error(1)
}

func (m *MockProcessorClient) GetBalance(ctx context.Context, accountID string) (*processor.Balance, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Balance), args.Error(1)
}

func contextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, "userID", userID)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(userID, kind, title, message, link string, metadata map[string]string) {
	m.Called(userID, kind, title, message, link, metadata)
}
