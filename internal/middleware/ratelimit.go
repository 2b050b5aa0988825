package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rate    rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// get returns the limiter of ip and forgets clients idle for too long.
func (ipl *ipLimiter) get(ip string) *rate.Limiter {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := ipl.now()
	for key, c := range ipl.clients {
		if now.Sub(c.lastSeen) > ipl.idle {
			delete(ipl.clients, key)
		}
	}

	c, ok := ipl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// RateLimit allows perMinute requests per client address, with bursts of
// burst requests. A non-positive perMinute disables limiting.
func RateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(h http.Handler) http.Handler { return h }
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	il := newIPLimiter(limit, burst)
	retryAfter := strconv.Itoa(max(1, int((time.Minute / time.Duration(perMinute)).Seconds())))

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !il.get(clientIP(r)).Allow() {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
