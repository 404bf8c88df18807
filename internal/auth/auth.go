package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cx-tal-miterani/airbook/internal/database"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// Kind distinguishes the three identity types.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindGuest    Kind = "guest"
	KindManager  Kind = "manager"
)

// Identity is an authenticated principal. Email is set for customers and
// guests, ManagerID for managers.
type Identity struct {
	Kind      Kind   `json:"kind"`
	Email     string `json:"email,omitempty"`
	ManagerID int64  `json:"managerId,omitempty"`
	Name      string `json:"name,omitempty"`
}

// IsGuest reports whether the identity is a guest.
func (i Identity) IsGuest() bool { return i.Kind == KindGuest }

// Store is the identity persistence consumed by the auth service.
type Store interface {
	GetCustomerByEmail(ctx context.Context, email string) (*database.Customer, error)
	GetManagerByID(ctx context.Context, id int64) (*database.Manager, error)
	CreateCustomer(ctx context.Context, c *database.Customer, phones []string) error
	EnsureGuest(ctx context.Context, email string) error
}

// Service authenticates customers, managers and guests, and issues
// session tokens.
type Service struct {
	store     Store
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates a new auth service.
func NewService(store Store, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Authenticate verifies credentials. An identifier containing '@' is a
// customer email; otherwise it must be a numeric manager employee id.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*Identity, error) {
	identifier = strings.TrimSpace(identifier)

	if strings.Contains(identifier, "@") {
		customer, err := s.store.GetCustomerByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, fmt.Errorf("failed to look up customer: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
		return &Identity{
			Kind:  KindCustomer,
			Email: customer.Email,
			Name:  customer.FirstName + " " + customer.LastName,
		}, nil
	}

	managerID, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	manager, err := s.store.GetManagerByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up manager: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(manager.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{
		Kind:      KindManager,
		ManagerID: manager.ID,
		Name:      manager.FirstName + " " + manager.LastName,
	}, nil
}

// RegisterRequest carries a customer signup.
type RegisterRequest struct {
	Email          string
	Password       string
	PassportNumber string
	BirthDate      time.Time
	FirstName      string
	LastName       string
	Phones         []string
}

// Register creates a customer account with at least one phone number.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	customer := &database.Customer{
		Email:          strings.TrimSpace(req.Email),
		PasswordHash:   string(hash),
		PassportNumber: req.PassportNumber,
		BirthDate:      req.BirthDate,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
	}

	if err := s.store.CreateCustomer(ctx, customer, req.Phones); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return &Identity{
		Kind:  KindCustomer,
		Email: customer.Email,
		Name:  customer.FirstName + " " + customer.LastName,
	}, nil
}

// SignInGuest signs a guest in by email only, creating the guest record
// if it does not exist. Idempotent.
func (s *Service) SignInGuest(ctx context.Context, email string) (*Identity, error) {
	email = strings.TrimSpace(email)
	if err := s.store.EnsureGuest(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to sign in guest: %w", err)
	}
	return &Identity{Kind: KindGuest, Email: email}, nil
}
