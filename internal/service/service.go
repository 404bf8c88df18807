package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cx-tal-miterani/airbook/internal/auth"
	"github.com/cx-tal-miterani/airbook/internal/database"
)

// ValidationError carries every violated input rule, collected before
// returning. Messages are user-presentable.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Policy holds the cancellation policy constants.
type Policy struct {
	CancellationCutoff time.Duration
	PenaltyRate        float64
}

// SearchRequest are the flight search inputs.
type SearchRequest struct {
	Origin      string
	Destination string
	Date        time.Time
	Passengers  int
}

// CreateOrderRequest carries a booking.
type CreateOrderRequest struct {
	FlightID   string
	SeatIDs    []string
	TotalPrice float64
	Owner      auth.Identity
}

// OrderDetails is the full view of an order: the order row, its flight
// and its assigned seats.
type OrderDetails struct {
	Order  database.Order       `json:"order"`
	Flight database.Flight      `json:"flight"`
	Seats  []database.SeatClass `json:"seats"`
}

// SeatUpdate describes one seat's occupancy change, pushed to seat-map
// viewers.
type SeatUpdate struct {
	SeatID   uuid.UUID
	Occupied bool
}

// SeatBroadcaster pushes seat occupancy changes to connected clients.
type SeatBroadcaster interface {
	NotifySeatsChanged(flightID uuid.UUID, seats []SeatUpdate)
}

// Store is the persistence layer consumed by the booking service.
type Store interface {
	GetFlightByID(ctx context.Context, id uuid.UUID) (*database.Flight, error)
	SearchFlights(ctx context.Context, origin, destination string, from, to time.Time, passengers int) ([]database.FlightWithCapacity, error)
	GetSeatMap(ctx context.Context, flightID uuid.UUID) ([]database.SeatView, error)
	CreateOrder(ctx context.Context, order *database.Order, seatIDs []uuid.UUID) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*database.Order, error)
	GetOrderSeats(ctx context.Context, orderID uuid.UUID) ([]database.SeatClass, error)
	ListOrdersByOwner(ctx context.Context, email string, guest bool) ([]database.Order, error)
	FinalizeCancellation(ctx context.Context, orderID uuid.UUID, penalty float64) error
	CompleteDepartedOrders(ctx context.Context, now time.Time) (int64, error)
}

// BookingService defines the booking core consumed by the web layer.
type BookingService interface {
	SearchFlights(ctx context.Context, req SearchRequest) ([]database.FlightWithCapacity, error)
	GetSeatMap(ctx context.Context, flightID string) ([]database.SeatView, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*database.Order, error)
	GetOrder(ctx context.Context, orderID string, ident auth.Identity) (*OrderDetails, error)
	ListOrders(ctx context.Context, ident auth.Identity) ([]database.Order, error)
	CancelOrder(ctx context.Context, orderID string, ident auth.Identity) (bool, string, error)
	SweepCompletedOrders(ctx context.Context)
}

// bookingServiceImpl implements BookingService
type bookingServiceImpl struct {
	store       Store
	policy      Policy
	log         *logrus.Logger
	broadcaster SeatBroadcaster
}

// NewBookingService creates a new BookingService. broadcaster may be nil.
func NewBookingService(store Store, policy Policy, log *logrus.Logger, broadcaster SeatBroadcaster) BookingService {
	return &bookingServiceImpl{
		store:       store,
		policy:      policy,
		log:         log,
		broadcaster: broadcaster,
	}
}

func isAirportCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func (s *bookingServiceImpl) SearchFlights(ctx context.Context, req SearchRequest) ([]database.FlightWithCapacity, error) {
	origin := strings.ToUpper(strings.TrimSpace(req.Origin))
	destination := strings.ToUpper(strings.TrimSpace(req.Destination))

	var messages []string
	if !isAirportCode(origin) {
		messages = append(messages, "Origin must be a 3-letter airport code.")
	}
	if !isAirportCode(destination) {
		messages = append(messages, "Destination must be a 3-letter airport code.")
	}
	if isAirportCode(origin) && isAirportCode(destination) && origin == destination {
		messages = append(messages, "Origin and destination must be different.")
	}
	today := time.Now().Truncate(24 * time.Hour)
	day := req.Date.Truncate(24 * time.Hour)
	if day.Before(today) {
		messages = append(messages, "Departure date cannot be in the past.")
	}
	if req.Passengers < 1 || req.Passengers > 9 {
		messages = append(messages, "Passenger count must be between 1 and 9.")
	}
	if len(messages) > 0 {
		return nil, &ValidationError{Messages: messages}
	}

	from := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, req.Date.Location())
	to := from.Add(24 * time.Hour)

	flights, err := s.store.SearchFlights(ctx, origin, destination, from, to, req.Passengers)
	if err != nil {
		return nil, fmt.Errorf("failed to search flights: %w", err)
	}
	// Zero results is not an error.
	return flights, nil
}

func (s *bookingServiceImpl) GetSeatMap(ctx context.Context, flightID string) ([]database.SeatView, error) {
	id, err := uuid.Parse(flightID)
	if err != nil {
		return nil, database.ErrNotFound
	}

	if _, err := s.store.GetFlightByID(ctx, id); err != nil {
		return nil, err
	}

	seats, err := s.store.GetSeatMap(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get seat map: %w", err)
	}
	return seats, nil
}

func (s *bookingServiceImpl) CreateOrder(ctx context.Context, req CreateOrderRequest) (*database.Order, error) {
	flightID, err := uuid.Parse(req.FlightID)
	if err != nil {
		return nil, database.ErrNotFound
	}

	var messages []string
	if len(req.SeatIDs) == 0 {
		messages = append(messages, "At least one seat must be selected.")
	}
	if req.Owner.Kind == auth.KindManager || req.Owner.Email == "" {
		messages = append(messages, "Orders can only be created by a customer or guest.")
	}
	if len(messages) > 0 {
		return nil, &ValidationError{Messages: messages}
	}

	seatIDs := make([]uuid.UUID, 0, len(req.SeatIDs))
	for _, raw := range req.SeatIDs {
		seatID, err := uuid.Parse(raw)
		if err != nil {
			return nil, database.ErrSeatUnknown
		}
		seatIDs = append(seatIDs, seatID)
	}

	order := &database.Order{
		FlightID:   flightID,
		TotalPrice: req.TotalPrice,
	}
	email := req.Owner.Email
	if req.Owner.IsGuest() {
		order.GuestEmail = &email
	} else {
		order.CustomerEmail = &email
	}

	if err := s.store.CreateOrder(ctx, order, seatIDs); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"flight_id": flightID,
		"seats":     len(seatIDs),
	}).Info("order created")

	s.notifySeats(flightID, seatIDs, true)

	return order, nil
}

// owns reports whether the identity is the order's owning identity.
// Authorization misses are presented as not-found so that the existence
// of another identity's order is never revealed.
func owns(order *database.Order, ident auth.Identity) bool {
	switch ident.Kind {
	case auth.KindCustomer:
		return order.CustomerEmail != nil && *order.CustomerEmail == ident.Email
	case auth.KindGuest:
		return order.GuestEmail != nil && *order.GuestEmail == ident.Email
	default:
		return false
	}
}

func (s *bookingServiceImpl) GetOrder(ctx context.Context, orderID string, ident auth.Identity) (*OrderDetails, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, database.ErrNotFound
	}

	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(order, ident) {
		return nil, database.ErrNotFound
	}

	flight, err := s.store.GetFlightByID(ctx, order.FlightID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order flight: %w", err)
	}

	seats, err := s.store.GetOrderSeats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order seats: %w", err)
	}

	return &OrderDetails{Order: *order, Flight: *flight, Seats: seats}, nil
}

func (s *bookingServiceImpl) ListOrders(ctx context.Context, ident auth.Identity) ([]database.Order, error) {
	if ident.Email == "" {
		return nil, nil
	}

	// Dashboard views are a sweep trigger point.
	s.SweepCompletedOrders(ctx)

	orders, err := s.store.ListOrdersByOwner(ctx, ident.Email, ident.IsGuest())
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *bookingServiceImpl) CancelOrder(ctx context.Context, orderID string, ident auth.Identity) (bool, string, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return false, "", database.ErrNotFound
	}

	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return false, "", err
	}
	if !owns(order, ident) {
		return false, "", database.ErrNotFound
	}

	if order.Status != database.OrderStatusActive {
		return false, "This order is already cancelled or completed.", nil
	}

	flight, err := s.store.GetFlightByID(ctx, order.FlightID)
	if err != nil {
		return false, "", fmt.Errorf("failed to get order flight: %w", err)
	}

	if time.Until(flight.DepartureTime) < s.policy.CancellationCutoff {
		hours := int(s.policy.CancellationCutoff.Hours())
		return false, fmt.Sprintf("Orders cannot be cancelled within %d hours of departure.", hours), nil
	}

	// Penalty computed from the price before the update.
	penalty := order.TotalPrice * s.policy.PenaltyRate

	// Seats fetched before they are freed, for the broadcast below.
	seats, err := s.store.GetOrderSeats(ctx, id)
	if err != nil {
		return false, "", fmt.Errorf("failed to get order seats: %w", err)
	}

	if err := s.store.FinalizeCancellation(ctx, id, penalty); err != nil {
		if errors.Is(err, database.ErrOrderNotActive) {
			// Lost a race with a concurrent cancellation or the sweeper.
			return false, "This order is already cancelled or completed.", nil
		}
		return false, "", err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": id,
		"penalty":  penalty,
	}).Info("order cancelled")

	seatIDs := make([]uuid.UUID, 0, len(seats))
	for _, seat := range seats {
		seatIDs = append(seatIDs, seat.ID)
	}
	s.notifySeats(order.FlightID, seatIDs, false)

	return true, fmt.Sprintf("Order cancelled. A cancellation fee of $%.2f applies.", penalty), nil
}

// SweepCompletedOrders advances active orders whose flight has departed
// to completed. Best-effort: failures are logged and swallowed.
func (s *bookingServiceImpl) SweepCompletedOrders(ctx context.Context) {
	n, err := s.store.CompleteDepartedOrders(ctx, time.Now())
	if err != nil {
		s.log.WithError(err).Error("order status sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("completed", n).Info("order status sweep advanced orders")
	}
}

func (s *bookingServiceImpl) notifySeats(flightID uuid.UUID, seatIDs []uuid.UUID, occupied bool) {
	if s.broadcaster == nil {
		return
	}
	updates := make([]SeatUpdate, 0, len(seatIDs))
	for _, id := range seatIDs {
		updates = append(updates, SeatUpdate{SeatID: id, Occupied: occupied})
	}
	s.broadcaster.NotifySeatsChanged(flightID, updates)
}
