package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cx-tal-miterani/airbook/internal/database"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetCustomerByEmail(ctx context.Context, email string) (*database.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Customer), args.Error(1)
}

func (m *MockStore) GetManagerByID(ctx context.Context, id int64) (*database.Manager, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Manager), args.Error(1)
}

func (m *MockStore) CreateCustomer(ctx context.Context, c *database.Customer, phones []string) error {
	args := m.Called(ctx, c, phones)
	return args.Error(0)
}

func (m *MockStore) EnsureGuest(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticate_Customer(t *testing.T) {
	hash := mustHash(t, "secret123")

	tests := []struct {
		name       string
		identifier string
		password   string
		customer   *database.Customer
		storeErr   error
		wantErr    error
	}{
		{
			name:       "valid credentials",
			identifier: "a@x.com",
			password:   "secret123",
			customer:   &database.Customer{Email: "a@x.com", PasswordHash: hash, FirstName: "Ada", LastName: "Lovelace"},
		},
		{
			name:       "wrong password",
			identifier: "a@x.com",
			password:   "nope",
			customer:   &database.Customer{Email: "a@x.com", PasswordHash: hash},
			wantErr:    ErrInvalidCredentials,
		},
		{
			name:       "unknown email",
			identifier: "ghost@x.com",
			password:   "secret123",
			storeErr:   database.ErrNotFound,
			wantErr:    ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			svc := NewService(store, "test-secret", time.Minute)

			store.On("GetCustomerByEmail", mock.Anything, tt.identifier).Return(tt.customer, tt.storeErr)

			ident, err := svc.Authenticate(context.Background(), tt.identifier, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindCustomer, ident.Kind)
			assert.Equal(t, "a@x.com", ident.Email)
			assert.Equal(t, "Ada Lovelace", ident.Name)
		})
	}
}

func TestAuthenticate_Manager(t *testing.T) {
	hash := mustHash(t, "admin-pass")

	t.Run("numeric employee id", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store, "test-secret", time.Minute)

		store.On("GetManagerByID", mock.Anything, int64(42)).Return(&database.Manager{
			ID: 42, PasswordHash: hash, FirstName: "Grace", LastName: "Hopper",
		}, nil)

		ident, err := svc.Authenticate(context.Background(), "42", "admin-pass")
		require.NoError(t, err)
		assert.Equal(t, KindManager, ident.Kind)
		assert.Equal(t, int64(42), ident.ManagerID)
	})

	t.Run("non-numeric identifier without @ is rejected", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store, "test-secret", time.Minute)

		_, err := svc.Authenticate(context.Background(), "bob", "admin-pass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		store.AssertNotCalled(t, "GetManagerByID")
	})
}

func TestRegister(t *testing.T) {
	t.Run("stores a bcrypt hash and the phones", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store, "test-secret", time.Minute)

		var created *database.Customer
		store.On("CreateCustomer", mock.Anything, mock.AnythingOfType("*database.Customer"), []string{"+972500000000"}).
			Run(func(args mock.Arguments) {
				created = args.Get(1).(*database.Customer)
			}).Return(nil)

		ident, err := svc.Register(context.Background(), RegisterRequest{
			Email:          "new@x.com",
			Password:       "secret123",
			PassportNumber: "P1234567",
			BirthDate:      time.Date(1990, 6, 1, 0, 0, 0, 0, time.UTC),
			FirstName:      "New",
			LastName:       "User",
			Phones:         []string{"+972500000000"},
		})

		require.NoError(t, err)
		assert.Equal(t, KindCustomer, ident.Kind)
		require.NotNil(t, created)
		assert.NotEqual(t, "secret123", created.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret123")))
	})

	t.Run("duplicate email", func(t *testing.T) {
		store := new(MockStore)
		svc := NewService(store, "test-secret", time.Minute)

		store.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return(database.ErrEmailTaken)

		_, err := svc.Register(context.Background(), RegisterRequest{
			Email:    "dup@x.com",
			Password: "secret123",
			Phones:   []string{"1"},
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestSignInGuest_Idempotent(t *testing.T) {
	store := new(MockStore)
	svc := NewService(store, "test-secret", time.Minute)

	store.On("EnsureGuest", mock.Anything, "g@x.com").Return(nil).Twice()

	for i := 0; i < 2; i++ {
		ident, err := svc.SignInGuest(context.Background(), " g@x.com ")
		require.NoError(t, err)
		assert.Equal(t, KindGuest, ident.Kind)
		assert.Equal(t, "g@x.com", ident.Email)
	}
	store.AssertExpectations(t)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(new(MockStore), "test-secret", time.Minute)

	original := Identity{Kind: KindGuest, Email: "g@x.com"}
	token, err := svc.IssueToken(original)
	require.NoError(t, err)

	parsed, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, original, *parsed)
}

func TestParseToken_Invalid(t *testing.T) {
	svc := NewService(new(MockStore), "test-secret", time.Minute)
	other := NewService(new(MockStore), "other-secret", time.Minute)

	token, err := other.IssueToken(Identity{Kind: KindCustomer, Email: "a@x.com"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	svc := NewService(new(MockStore), "test-secret", -time.Minute)

	token, err := svc.IssueToken(Identity{Kind: KindCustomer, Email: "a@x.com"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
