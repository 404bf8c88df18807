package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrSeatTaken      = errors.New("seat already taken")
	ErrSeatUnknown    = errors.New("seat does not belong to this flight's plane")
	ErrOrderNotActive = errors.New("order is not active")
	ErrEmailTaken     = errors.New("email already registered")
)

// Repository handles all database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Flight Operations ---

// GetFlightByID returns a flight by ID
func (r *Repository) GetFlightByID(ctx context.Context, id uuid.UUID) (*Flight, error) {
	query := `
		SELECT id, origin, destination, departure_time, arrival_time,
		       business_price, economy_price, plane_id
		FROM flights
		WHERE id = $1
	`

	var f Flight
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.Origin, &f.Destination, &f.DepartureTime, &f.ArrivalTime,
		&f.BusinessPrice, &f.EconomyPrice, &f.PlaneID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get flight: %w", err)
	}

	return &f, nil
}

// SearchFlights returns flights on the given route departing within
// [from, to) whose remaining capacity is at least passengers. Remaining
// capacity is plane capacity minus seats held by active orders.
func (r *Repository) SearchFlights(ctx context.Context, origin, destination string, from, to time.Time, passengers int) ([]FlightWithCapacity, error) {
	query := `
		SELECT q.id, q.origin, q.destination, q.departure_time, q.arrival_time,
		       q.business_price, q.economy_price, q.plane_id,
		       q.total_capacity, q.remaining_seats
		FROM (
			SELECT f.id, f.origin, f.destination, f.departure_time, f.arrival_time,
			       f.business_price, f.economy_price, f.plane_id,
			       p.total_capacity,
			       p.total_capacity - (
			           SELECT COUNT(*)
			           FROM assigned a
			           JOIN orders o ON o.id = a.order_id
			           WHERE o.flight_id = f.id AND o.status = 'active'
			       ) AS remaining_seats
			FROM flights f
			JOIN planes p ON p.id = f.plane_id
			WHERE f.origin = $1 AND f.destination = $2
			  AND f.departure_time >= $3 AND f.departure_time < $4
		) q
		WHERE q.remaining_seats >= $5
		ORDER BY q.departure_time ASC
	`

	rows, err := r.pool.Query(ctx, query, origin, destination, from, to, passengers)
	if err != nil {
		return nil, fmt.Errorf("failed to search flights: %w", err)
	}
	defer rows.Close()

	var flights []FlightWithCapacity
	for rows.Next() {
		var f FlightWithCapacity
		err := rows.Scan(
			&f.ID, &f.Origin, &f.Destination, &f.DepartureTime, &f.ArrivalTime,
			&f.BusinessPrice, &f.EconomyPrice, &f.PlaneID,
			&f.TotalCapacity, &f.RemainingSeats,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}

	return flights, rows.Err()
}

// RemainingCapacity returns the number of unoccupied seats on a flight.
func (r *Repository) RemainingCapacity(ctx context.Context, flightID uuid.UUID) (int, error) {
	query := `
		SELECT p.total_capacity - (
			SELECT COUNT(*)
			FROM assigned a
			JOIN orders o ON o.id = a.order_id
			WHERE o.flight_id = f.id AND o.status = 'active'
		)
		FROM flights f
		JOIN planes p ON p.id = f.plane_id
		WHERE f.id = $1
	`

	var remaining int
	err := r.pool.QueryRow(ctx, query, flightID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to compute remaining capacity: %w", err)
	}
	return remaining, nil
}

// --- Seat Operations ---

// GetSeatMap returns every seat of the flight's plane with its occupancy
// flag, sorted by row then column letter. A seat is occupied when an
// active order for this flight holds an assigned row for it.
func (r *Repository) GetSeatMap(ctx context.Context, flightID uuid.UUID) ([]SeatView, error) {
	query := `
		SELECT sc.id, sc.row_number, sc.column_letter, sc.fare_class,
		       CASE WHEN sc.fare_class = 'business' THEN f.business_price
		            ELSE f.economy_price END AS price,
		       EXISTS (
		           SELECT 1
		           FROM assigned a
		           JOIN orders o ON o.id = a.order_id
		           WHERE a.seat_id = sc.id
		             AND o.flight_id = f.id
		             AND o.status = 'active'
		       ) AS occupied
		FROM flights f
		JOIN seat_classes sc ON sc.plane_id = f.plane_id
		WHERE f.id = $1
		ORDER BY sc.row_number, sc.column_letter
	`

	rows, err := r.pool.Query(ctx, query, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seat map: %w", err)
	}
	defer rows.Close()

	var seats []SeatView
	for rows.Next() {
		var s SeatView
		err := rows.Scan(&s.ID, &s.RowNumber, &s.ColumnLetter, &s.FareClass, &s.Price, &s.Occupied)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, s)
	}

	return seats, rows.Err()
}

// --- Order Operations ---

// CreateOrder inserts an order and all of its seat assignments in a
// single transaction. The flight row is locked FOR UPDATE so two
// concurrent bookings for the same flight are serialized; the occupancy
// check then runs under that lock, so the same seat can never be assigned
// by two active orders.
func (r *Repository) CreateOrder(ctx context.Context, order *Order, seatIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var planeID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT plane_id FROM flights WHERE id = $1 FOR UPDATE
	`, order.FlightID).Scan(&planeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock flight: %w", err)
	}

	var known int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM seat_classes WHERE plane_id = $1 AND id = ANY($2)
	`, planeID, seatIDs).Scan(&known)
	if err != nil {
		return fmt.Errorf("failed to verify seats: %w", err)
	}
	if known != len(seatIDs) {
		return ErrSeatUnknown
	}

	var taken int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM assigned a
		JOIN orders o ON o.id = a.order_id
		WHERE o.flight_id = $1 AND o.status = 'active' AND a.seat_id = ANY($2)
	`, order.FlightID, seatIDs).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check seat occupancy: %w", err)
	}
	if taken > 0 {
		return ErrSeatTaken
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = OrderStatusActive

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, status, total_price, flight_id, customer_email, guest_email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, order.ID, order.Status, order.TotalPrice, order.FlightID,
		order.CustomerEmail, order.GuestEmail,
	).Scan(&order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, seatID := range seatIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO assigned (seat_id, order_id, plane_id)
			VALUES ($1, $2, $3)
		`, seatID, order.ID, planeID)
		if err != nil {
			return fmt.Errorf("failed to assign seat: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetOrderByID returns an order by ID
func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `
		SELECT id, status, created_at, total_price, flight_id, customer_email, guest_email
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.Status, &o.CreatedAt, &o.TotalPrice, &o.FlightID,
		&o.CustomerEmail, &o.GuestEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &o, nil
}

// GetOrderSeats returns the seats assigned to an order, sorted by row
// then column letter. Cancelled orders have no assigned rows left.
func (r *Repository) GetOrderSeats(ctx context.Context, orderID uuid.UUID) ([]SeatClass, error) {
	query := `
		SELECT sc.id, sc.plane_id, sc.row_number, sc.column_letter, sc.fare_class
		FROM assigned a
		JOIN seat_classes sc ON sc.id = a.seat_id
		WHERE a.order_id = $1
		ORDER BY sc.row_number, sc.column_letter
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order seats: %w", err)
	}
	defer rows.Close()

	var seats []SeatClass
	for rows.Next() {
		var s SeatClass
		if err := rows.Scan(&s.ID, &s.PlaneID, &s.RowNumber, &s.ColumnLetter, &s.FareClass); err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, s)
	}

	return seats, rows.Err()
}

// ListOrdersByOwner returns all orders owned by the given identity email.
func (r *Repository) ListOrdersByOwner(ctx context.Context, email string, guest bool) ([]Order, error) {
	column := "customer_email"
	if guest {
		column = "guest_email"
	}
	query := fmt.Sprintf(`
		SELECT id, status, created_at, total_price, flight_id, customer_email, guest_email
		FROM orders
		WHERE %s = $1
		ORDER BY created_at DESC
	`, column)

	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		err := rows.Scan(&o.ID, &o.Status, &o.CreatedAt, &o.TotalPrice, &o.FlightID,
			&o.CustomerEmail, &o.GuestEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// FinalizeCancellation marks an order as cancelled by the customer, sets
// its total price to the penalty amount and frees its seats, in a single
// transaction. The status guard on the UPDATE means that of two
// concurrent cancellations only one can succeed; the loser gets
// ErrOrderNotActive.
func (r *Repository) FinalizeCancellation(ctx context.Context, orderID uuid.UUID, penalty float64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, total_price = $2
		WHERE id = $3 AND status = $4
	`, OrderStatusCancelled, penalty, orderID, OrderStatusActive)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotActive
	}

	_, err = tx.Exec(ctx, `DELETE FROM assigned WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	return tx.Commit(ctx)
}

// CompleteDepartedOrders advances every active order whose flight has
// already departed to completed, and returns how many were advanced.
// Idempotent: a second run matches no rows.
func (r *Repository) CompleteDepartedOrders(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders o
		SET status = $1
		FROM flights f
		WHERE f.id = o.flight_id
		  AND o.status = $2
		  AND f.departure_time < $3
	`, OrderStatusCompleted, OrderStatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("failed to complete departed orders: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Identity Operations ---

// GetCustomerByEmail returns a customer account by email
func (r *Repository) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	query := `
		SELECT email, password_hash, passport_number, birth_date, first_name, last_name
		FROM customers
		WHERE email = $1
	`

	var c Customer
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&c.Email, &c.PasswordHash, &c.PassportNumber, &c.BirthDate,
		&c.FirstName, &c.LastName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &c, nil
}

// GetManagerByID returns a manager account by employee id
func (r *Repository) GetManagerByID(ctx context.Context, id int64) (*Manager, error) {
	query := `
		SELECT id, password_hash, first_name, last_name
		FROM managers
		WHERE id = $1
	`

	var m Manager
	err := r.pool.QueryRow(ctx, query, id).Scan(&m.ID, &m.PasswordHash, &m.FirstName, &m.LastName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get manager: %w", err)
	}

	return &m, nil
}

// CreateCustomer inserts a customer and their phone numbers in a single
// transaction. Returns ErrEmailTaken when the email is already registered.
func (r *Repository) CreateCustomer(ctx context.Context, c *Customer, phones []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE email = $1)
	`, c.Email).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return ErrEmailTaken
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO customers (email, password_hash, passport_number, birth_date, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.Email, c.PasswordHash, c.PassportNumber, c.BirthDate, c.FirstName, c.LastName)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	for _, phone := range phones {
		_, err = tx.Exec(ctx, `
			INSERT INTO customer_phones (customer_email, phone)
			VALUES ($1, $2)
		`, c.Email, phone)
		if err != nil {
			return fmt.Errorf("failed to add phone: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// EnsureGuest inserts a guest record if it does not already exist.
// Idempotent upsert-by-email.
func (r *Repository) EnsureGuest(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO guests (email) VALUES ($1)
		ON CONFLICT (email) DO NOTHING
	`, email)
	if err != nil {
		return fmt.Errorf("failed to ensure guest: %w", err)
	}
	return nil
}
