package database

import (
	"time"

	"github.com/google/uuid"
)

// FareClass is the fare tier of a physical seat.
type FareClass string

const (
	FareClassEconomy  FareClass = "economy"
	FareClassBusiness FareClass = "business"
)

// Plane is a seat-layout template shared by every flight that uses it.
type Plane struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TotalCapacity int       `json:"totalCapacity"`
}

// SeatClass is a physical seat definition on a plane template.
type SeatClass struct {
	ID           uuid.UUID `json:"id"`
	PlaneID      uuid.UUID `json:"planeId"`
	RowNumber    int       `json:"row"`
	ColumnLetter string    `json:"column"`
	FareClass    FareClass `json:"class"`
}

// Flight is a scheduled flight. Immutable once scheduled.
type Flight struct {
	ID            uuid.UUID `json:"id"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	BusinessPrice float64   `json:"businessPrice"`
	EconomyPrice  float64   `json:"economyPrice"`
	PlaneID       uuid.UUID `json:"planeId"`
}

// FlightWithCapacity is a flight annotated with its remaining capacity,
// i.e. plane capacity minus seats held by active orders.
type FlightWithCapacity struct {
	Flight
	TotalCapacity  int `json:"totalCapacity"`
	RemainingSeats int `json:"remainingSeats"`
}

// SeatView is one seat of a flight's seat map with its occupancy flag.
type SeatView struct {
	ID           uuid.UUID `json:"id"`
	RowNumber    int       `json:"row"`
	ColumnLetter string    `json:"column"`
	FareClass    FareClass `json:"class"`
	Price        float64   `json:"price"`
	Occupied     bool      `json:"occupied"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "customer_cancellation"
)

// Order is a booking. Exactly one of CustomerEmail/GuestEmail is set.
type Order struct {
	ID            uuid.UUID   `json:"id"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	TotalPrice    float64     `json:"totalPrice"`
	FlightID      uuid.UUID   `json:"flightId"`
	CustomerEmail *string     `json:"customerEmail,omitempty"`
	GuestEmail    *string     `json:"guestEmail,omitempty"`
}

// Customer is a registered customer account.
type Customer struct {
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	PassportNumber string    `json:"passportNumber"`
	BirthDate      time.Time `json:"birthDate"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
}

// Manager is a staff account identified by a numeric employee id.
type Manager struct {
	ID           int64  `json:"id"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
}
