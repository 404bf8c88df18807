package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cx-tal-miterani/airbook/internal/auth"
	"github.com/cx-tal-miterani/airbook/internal/database"
	"github.com/cx-tal-miterani/airbook/internal/service"
)

// IdentityService is the slice of the auth service the handlers consume.
type IdentityService interface {
	Authenticate(ctx context.Context, identifier, password string) (*auth.Identity, error)
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Identity, error)
	SignInGuest(ctx context.Context, email string) (*auth.Identity, error)
	IssueToken(ident auth.Identity) (string, error)
	ParseToken(token string) (*auth.Identity, error)
}

// Handler contains HTTP handlers for the API
type Handler struct {
	bookingService service.BookingService
	identity       IdentityService
	validate       *validator.Validate
	log            *logrus.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(bookingService service.BookingService, identity IdentityService, log *logrus.Logger) *Handler {
	return &Handler{
		bookingService: bookingService,
		identity:       identity,
		validate:       validator.New(),
		log:            log,
	}
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidation(w http.ResponseWriter, messages []string) {
	respondJSON(w, http.StatusBadRequest, map[string][]string{"errors": messages})
}

// respondServiceError maps service errors to HTTP responses. Internal
// detail is logged, never surfaced.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondValidation(w, verr.Messages)
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, database.ErrSeatTaken):
		respondError(w, http.StatusConflict, "One or more selected seats are already taken.")
	case errors.Is(err, database.ErrSeatUnknown):
		respondError(w, http.StatusBadRequest, "One or more selected seats do not exist on this flight.")
	default:
		h.log.WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"Invalid request."}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, "Field '"+fe.Field()+"' is required.")
		case "email":
			messages = append(messages, "Field '"+fe.Field()+"' must be a valid email address.")
		case "eqfield":
			messages = append(messages, "Password and confirmation do not match.")
		case "min":
			messages = append(messages, "Field '"+fe.Field()+"' is too short.")
		default:
			messages = append(messages, "Field '"+fe.Field()+"' is invalid.")
		}
	}
	return messages
}

// --- Identity middleware ---

type contextKey string

const identityKey contextKey = "identity"

// RequireIdentity parses the bearer token and stores the identity in the
// request context.
func (h *Handler) RequireIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "Authentication required.")
			return
		}

		ident, err := h.identity.ParseToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired session.")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, *ident)
		next(w, r.WithContext(ctx))
	}
}

func identityFrom(r *http.Request) auth.Identity {
	ident, _ := r.Context().Value(identityKey).(auth.Identity)
	return ident
}

// --- Auth handlers ---

// LoginRequest is a customer or manager login. A username containing '@'
// is a customer email, otherwise a numeric manager employee id.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse is returned on successful authentication.
type SessionResponse struct {
	Token    string        `json:"token"`
	Identity auth.Identity `json:"identity"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidation(w, validationMessages(err))
		return
	}

	ident, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid username or password.")
			return
		}
		h.respondServiceError(w, err)
		return
	}

	h.respondSession(w, *ident)
}

// SignupRequest is a customer registration.
type SignupRequest struct {
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required,min=8"`
	ConfirmPassword string   `json:"confirmPassword" validate:"required,eqfield=Password"`
	PassportNumber  string   `json:"passportNumber" validate:"required"`
	BirthDate       string   `json:"birthDate" validate:"required"`
	FirstName       string   `json:"firstName" validate:"required"`
	LastName        string   `json:"lastName" validate:"required"`
	Phones          []string `json:"phones" validate:"required,min=1,dive,required"`
}

// Signup handles POST /api/auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidation(w, validationMessages(err))
		return
	}

	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		respondValidation(w, []string{"Birth date must be in YYYY-MM-DD format."})
		return
	}

	ident, err := h.identity.Register(r.Context(), auth.RegisterRequest{
		Email:          req.Email,
		Password:       req.Password,
		PassportNumber: req.PassportNumber,
		BirthDate:      birthDate,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phones:         req.Phones,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "An account with this email already exists.")
			return
		}
		h.respondServiceError(w, err)
		return
	}

	h.respondSession(w, *ident)
}

// GuestRequest is a guest sign-in by email only.
type GuestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// GuestSignIn handles POST /api/auth/guest
func (h *Handler) GuestSignIn(w http.ResponseWriter, r *http.Request) {
	var req GuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidation(w, validationMessages(err))
		return
	}

	ident, err := h.identity.SignInGuest(r.Context(), req.Email)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondSession(w, *ident)
}

func (h *Handler) respondSession(w http.ResponseWriter, ident auth.Identity) {
	token, err := h.identity.IssueToken(ident)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Token: token, Identity: ident})
}

// --- Flight handlers ---

// SearchFlights handles GET /api/flights/search
func (h *Handler) SearchFlights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var messages []string
	date, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		messages = append(messages, "Departure date must be in YYYY-MM-DD format.")
	}
	passengers, err := strconv.Atoi(q.Get("passengers"))
	if err != nil {
		messages = append(messages, "Passenger count must be a number.")
	}
	if len(messages) > 0 {
		respondValidation(w, messages)
		return
	}

	flights, err := h.bookingService.SearchFlights(r.Context(), service.SearchRequest{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		Date:        date,
		Passengers:  passengers,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if flights == nil {
		flights = []database.FlightWithCapacity{}
	}
	respondJSON(w, http.StatusOK, flights)
}

// GetSeatMap handles GET /api/flights/{id}/seats
func (h *Handler) GetSeatMap(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]

	seats, err := h.bookingService.GetSeatMap(r.Context(), flightID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, seats)
}

// --- Order handlers ---

// CreateOrderRequest is a booking submission.
type CreateOrderRequest struct {
	FlightID   string   `json:"flightId" validate:"required"`
	SeatIDs    []string `json:"seatIds" validate:"required,min=1"`
	TotalPrice float64  `json:"totalPrice" validate:"required,gt=0"`
}

// CreateOrder handles POST /api/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidation(w, validationMessages(err))
		return
	}

	order, err := h.bookingService.CreateOrder(r.Context(), service.CreateOrderRequest{
		FlightID:   req.FlightID,
		SeatIDs:    req.SeatIDs,
		TotalPrice: req.TotalPrice,
		Owner:      identityFrom(r),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /api/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.bookingService.ListOrders(r.Context(), identityFrom(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if orders == nil {
		orders = []database.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	details, err := h.bookingService.GetOrder(r.Context(), orderID, identityFrom(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// CancelOrderResponse reports a cancellation outcome. The message is
// user-presentable whether or not the cancellation succeeded.
type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CancelOrder handles DELETE /api/orders/{id}
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	ok, message, err := h.bookingService.CancelOrder(r.Context(), orderID, identityFrom(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CancelOrderResponse{Success: ok, Message: message})
}

// SweepOrders handles POST /api/admin/sweep (manager only)
func (h *Handler) SweepOrders(w http.ResponseWriter, r *http.Request) {
	if identityFrom(r).Kind != auth.KindManager {
		respondError(w, http.StatusForbidden, "Manager access required.")
		return
	}

	h.bookingService.SweepCompletedOrders(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
