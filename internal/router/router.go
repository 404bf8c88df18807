package router

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/cx-tal-miterani/airbook/internal/handlers"
	"github.com/cx-tal-miterani/airbook/internal/websocket"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *handlers.Handler, hub *websocket.Hub, limiter *ClientLimiter) *mux.Router {
	r := mux.NewRouter()

	r.Use(corsMiddleware)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Auth
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/auth/guest", h.GuestSignIn).Methods(http.MethodPost, http.MethodOptions)

	// Flights
	api.HandleFunc("/flights/search", h.SearchFlights).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{id}/seats", h.GetSeatMap).Methods(http.MethodGet, http.MethodOptions)

	// Orders
	api.HandleFunc("/orders", h.RequireIdentity(h.CreateOrder)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/orders", h.RequireIdentity(h.ListOrders)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/orders/{id}", h.RequireIdentity(h.GetOrder)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/orders/{id}", h.RequireIdentity(h.CancelOrder)).Methods(http.MethodDelete, http.MethodOptions)

	// Maintenance
	api.HandleFunc("/admin/sweep", h.RequireIdentity(h.SweepOrders)).Methods(http.MethodPost, http.MethodOptions)

	// WebSocket for real-time seat updates
	api.HandleFunc("/flights/{flightId}/ws", hub.ServeWS)

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientLimiter rate-limits requests per client IP.
type ClientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rps      rate.Limit
	burst    int
	lastSeen time.Duration
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewClientLimiter creates a per-client rate limiter allowing rps
// requests per second with the given burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients:  make(map[string]*clientBucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
}

func (l *ClientLimiter) allow(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	// Drop buckets for clients not seen recently.
	for ip, bucket := range l.clients {
		if now.Sub(bucket.seen) > l.lastSeen {
			delete(l.clients, ip)
		}
	}

	bucket, ok := l.clients[host]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[host] = bucket
	}
	bucket.seen = now

	return bucket.limiter.Allow()
}

// Middleware rejects requests over the per-client limit with 429.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
