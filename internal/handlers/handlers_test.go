package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/airbook/internal/auth"
	"github.com/cx-tal-miterani/airbook/internal/database"
	"github.com/cx-tal-miterani/airbook/internal/service"
	"github.com/cx-tal-miterani/airbook/internal/service/mocks"
)

// stubIdentity is a canned IdentityService for handler tests.
type stubIdentity struct {
	ident    *auth.Identity
	authErr  error
	parseErr error
}

func (s *stubIdentity) Authenticate(ctx context.Context, identifier, password string) (*auth.Identity, error) {
	return s.ident, s.authErr
}

func (s *stubIdentity) Register(ctx context.Context, req auth.RegisterRequest) (*auth.Identity, error) {
	return s.ident, s.authErr
}

func (s *stubIdentity) SignInGuest(ctx context.Context, email string) (*auth.Identity, error) {
	return s.ident, s.authErr
}

func (s *stubIdentity) IssueToken(ident auth.Identity) (string, error) {
	return "test-token", nil
}

func (s *stubIdentity) ParseToken(token string) (*auth.Identity, error) {
	return s.ident, s.parseErr
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupTestRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/guest", h.GuestSignIn).Methods(http.MethodPost)
	api.HandleFunc("/flights/search", h.SearchFlights).Methods(http.MethodGet)
	api.HandleFunc("/flights/{id}/seats", h.GetSeatMap).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.RequireIdentity(h.CreateOrder)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.RequireIdentity(h.GetOrder)).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.RequireIdentity(h.CancelOrder)).Methods(http.MethodDelete)
	api.HandleFunc("/admin/sweep", h.RequireIdentity(h.SweepOrders)).Methods(http.MethodPost)
	return r
}

func TestHandler_Login(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		identity       *stubIdentity
		expectedStatus int
	}{
		{
			name: "customer login",
			body: LoginRequest{Username: "a@x.com", Password: "secret123"},
			identity: &stubIdentity{
				ident: &auth.Identity{Kind: auth.KindCustomer, Email: "a@x.com"},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid credentials",
			body:           LoginRequest{Username: "a@x.com", Password: "wrong"},
			identity:       &stubIdentity{authErr: auth.ErrInvalidCredentials},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing fields",
			body:           LoginRequest{},
			identity:       &stubIdentity{},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(new(mocks.MockBookingService), tt.identity, testLogger())
			router := setupTestRouter(handler)

			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var resp SessionResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, "test-token", resp.Token)
			}
		})
	}
}

func TestHandler_GuestSignIn(t *testing.T) {
	tests := []struct {
		name           string
		body           GuestRequest
		expectedStatus int
	}{
		{"valid email", GuestRequest{Email: "g@x.com"}, http.StatusOK},
		{"invalid email", GuestRequest{Email: "not-an-email"}, http.StatusBadRequest},
		{"missing email", GuestRequest{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := &stubIdentity{ident: &auth.Identity{Kind: auth.KindGuest, Email: tt.body.Email}}
			handler := NewHandler(new(mocks.MockBookingService), identity, testLogger())
			router := setupTestRouter(handler)

			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/auth/guest", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestHandler_SearchFlights(t *testing.T) {
	flightID := uuid.New()

	t.Run("returns matching flights", func(t *testing.T) {
		mockService := new(mocks.MockBookingService)
		handler := NewHandler(mockService, &stubIdentity{}, testLogger())
		router := setupTestRouter(handler)

		expected := []database.FlightWithCapacity{
			{Flight: database.Flight{ID: flightID, Origin: "TLV", Destination: "JFK"}, TotalCapacity: 180, RemainingSeats: 12},
		}
		mockService.On("SearchFlights", mock.Anything, mock.AnythingOfType("service.SearchRequest")).Return(expected, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/flights/search?origin=TLV&destination=JFK&date=2030-06-01&passengers=2", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response []database.FlightWithCapacity
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Len(t, response, 1)
		assert.Equal(t, "TLV", response[0].Origin)
		mockService.AssertExpectations(t)
	})

	t.Run("collected validation messages are returned together", func(t *testing.T) {
		mockService := new(mocks.MockBookingService)
		handler := NewHandler(mockService, &stubIdentity{}, testLogger())
		router := setupTestRouter(handler)

		mockService.On("SearchFlights", mock.Anything, mock.Anything).Return(nil, &service.ValidationError{
			Messages: []string{
				"Origin must be a 3-letter airport code.",
				"Passenger count must be between 1 and 9.",
			},
		})

		req := httptest.NewRequest(http.MethodGet, "/api/flights/search?origin=X&destination=JFK&date=2030-06-01&passengers=0", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var response map[string][]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Len(t, response["errors"], 2)
	})

	t.Run("unparseable query params rejected before the service", func(t *testing.T) {
		mockService := new(mocks.MockBookingService)
		handler := NewHandler(mockService, &stubIdentity{}, testLogger())
		router := setupTestRouter(handler)

		req := httptest.NewRequest(http.MethodGet, "/api/flights/search?origin=TLV&destination=JFK&date=junk&passengers=x", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "SearchFlights")
	})
}

func TestHandler_GetSeatMap(t *testing.T) {
	flightID := uuid.New()

	tests := []struct {
		name           string
		flightID       string
		mockReturn     []database.SeatView
		mockError      error
		expectedStatus int
	}{
		{
			name:     "seat map returned",
			flightID: flightID.String(),
			mockReturn: []database.SeatView{
				{ID: uuid.New(), RowNumber: 1, ColumnLetter: "A", Occupied: true},
				{ID: uuid.New(), RowNumber: 1, ColumnLetter: "B", Occupied: false},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "flight not found",
			flightID:       uuid.New().String(),
			mockError:      database.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockBookingService)
			handler := NewHandler(mockService, &stubIdentity{}, testLogger())
			router := setupTestRouter(handler)

			mockService.On("GetSeatMap", mock.Anything, tt.flightID).Return(tt.mockReturn, tt.mockError)

			req := httptest.NewRequest(http.MethodGet, "/api/flights/"+tt.flightID+"/seats", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_CreateOrder(t *testing.T) {
	flightID := uuid.New()
	orderID := uuid.New()
	customer := &auth.Identity{Kind: auth.KindCustomer, Email: "a@x.com"}

	tests := []struct {
		name           string
		authorized     bool
		body           interface{}
		mockReturn     *database.Order
		mockError      error
		expectedStatus int
		shouldCallMock bool
	}{
		{
			name:       "valid order creation",
			authorized: true,
			body: CreateOrderRequest{
				FlightID:   flightID.String(),
				SeatIDs:    []string{uuid.New().String(), uuid.New().String()},
				TotalPrice: 500,
			},
			mockReturn:     &database.Order{ID: orderID, FlightID: flightID, Status: database.OrderStatusActive},
			expectedStatus: http.StatusCreated,
			shouldCallMock: true,
		},
		{
			name:       "no seats selected",
			authorized: true,
			body: CreateOrderRequest{
				FlightID:   flightID.String(),
				TotalPrice: 500,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:       "seat already taken",
			authorized: true,
			body: CreateOrderRequest{
				FlightID:   flightID.String(),
				SeatIDs:    []string{uuid.New().String()},
				TotalPrice: 150,
			},
			mockError:      database.ErrSeatTaken,
			expectedStatus: http.StatusConflict,
			shouldCallMock: true,
		},
		{
			name:       "no session",
			authorized: false,
			body: CreateOrderRequest{
				FlightID:   flightID.String(),
				SeatIDs:    []string{uuid.New().String()},
				TotalPrice: 150,
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockBookingService)
			identity := &stubIdentity{ident: customer}
			handler := NewHandler(mockService, identity, testLogger())
			router := setupTestRouter(handler)

			if tt.shouldCallMock {
				mockService.On("CreateOrder", mock.Anything, mock.AnythingOfType("service.CreateOrderRequest")).Return(tt.mockReturn, tt.mockError)
			}

			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.authorized {
				req.Header.Set("Authorization", "Bearer test-token")
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestHandler_GetOrder(t *testing.T) {
	orderID := uuid.New()
	customer := &auth.Identity{Kind: auth.KindCustomer, Email: "a@x.com"}

	tests := []struct {
		name           string
		mockReturn     *service.OrderDetails
		mockError      error
		expectedStatus int
	}{
		{
			name: "order found",
			mockReturn: &service.OrderDetails{
				Order: database.Order{ID: orderID, Status: database.OrderStatusActive},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not owned or absent",
			mockError:      database.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockBookingService)
			handler := NewHandler(mockService, &stubIdentity{ident: customer}, testLogger())
			router := setupTestRouter(handler)

			mockService.On("GetOrder", mock.Anything, orderID.String(), *customer).Return(tt.mockReturn, tt.mockError)

			req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
			req.Header.Set("Authorization", "Bearer test-token")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_CancelOrder(t *testing.T) {
	orderID := uuid.New()
	customer := &auth.Identity{Kind: auth.KindCustomer, Email: "a@x.com"}

	tests := []struct {
		name            string
		mockOK          bool
		mockMessage     string
		mockError       error
		expectedStatus  int
		expectedSuccess bool
	}{
		{
			name:            "cancelled with fee",
			mockOK:          true,
			mockMessage:     "Order cancelled. A cancellation fee of $25.00 applies.",
			expectedStatus:  http.StatusOK,
			expectedSuccess: true,
		},
		{
			name:           "refused by policy is still a presentable outcome",
			mockOK:         false,
			mockMessage:    "Orders cannot be cancelled within 36 hours of departure.",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "order not found",
			mockError:      database.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockBookingService)
			handler := NewHandler(mockService, &stubIdentity{ident: customer}, testLogger())
			router := setupTestRouter(handler)

			mockService.On("CancelOrder", mock.Anything, orderID.String(), *customer).Return(tt.mockOK, tt.mockMessage, tt.mockError)

			req := httptest.NewRequest(http.MethodDelete, "/api/orders/"+orderID.String(), nil)
			req.Header.Set("Authorization", "Bearer test-token")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var resp CancelOrderResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, tt.expectedSuccess, resp.Success)
				assert.Equal(t, tt.mockMessage, resp.Message)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_SweepOrders(t *testing.T) {
	tests := []struct {
		name           string
		ident          *auth.Identity
		expectedStatus int
		shouldSweep    bool
	}{
		{
			name:           "manager may sweep",
			ident:          &auth.Identity{Kind: auth.KindManager, ManagerID: 7},
			expectedStatus: http.StatusNoContent,
			shouldSweep:    true,
		},
		{
			name:           "customer may not",
			ident:          &auth.Identity{Kind: auth.KindCustomer, Email: "a@x.com"},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.MockBookingService)
			handler := NewHandler(mockService, &stubIdentity{ident: tt.ident}, testLogger())
			router := setupTestRouter(handler)

			if tt.shouldSweep {
				mockService.On("SweepCompletedOrders", mock.Anything).Return()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/admin/sweep", nil)
			req.Header.Set("Authorization", "Bearer test-token")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}
