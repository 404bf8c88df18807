package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cx-tal-miterani/airbook/internal/auth"
	"github.com/cx-tal-miterani/airbook/internal/database"
	"github.com/cx-tal-miterani/airbook/internal/service"
)

// MockBookingService is a mock implementation of BookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) SearchFlights(ctx context.Context, req service.SearchRequest) ([]database.FlightWithCapacity, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.FlightWithCapacity), args.Error(1)
}

func (m *MockBookingService) GetSeatMap(ctx context.Context, flightID string) ([]database.SeatView, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.SeatView), args.Error(1)
}

func (m *MockBookingService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*database.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Order), args.Error(1)
}

func (m *MockBookingService) GetOrder(ctx context.Context, orderID string, ident auth.Identity) (*service.OrderDetails, error) {
	args := m.Called(ctx, orderID, ident)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OrderDetails), args.Error(1)
}

func (m *MockBookingService) ListOrders(ctx context.Context, ident auth.Identity) ([]database.Order, error) {
	args := m.Called(ctx, ident)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.Order), args.Error(1)
}

func (m *MockBookingService) CancelOrder(ctx context.Context, orderID string, ident auth.Identity) (bool, string, error) {
	args := m.Called(ctx, orderID, ident)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *MockBookingService) SweepCompletedOrders(ctx context.Context) {
	m.Called(ctx)
}
