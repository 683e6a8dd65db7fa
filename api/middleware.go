package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"s4/metrics"
)

// SecretKeyHeader is the request-metadata field carrying the shared
// secret verbatim.
const SecretKeyHeader = "s4-Secret-Key"

// requestIDMiddleware tags every request with an ID for log
// correlation.
func (a *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

// rateLimitMiddleware provides rate limiting per client IP.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		a.rateLimitersMu.Lock()
		entry, exists := a.rateLimiters[ip]
		if !exists {
			entry = &rateLimiterEntry{
				limiter: rate.NewLimiter(
					rate.Limit(a.config.API.RateLimit.RequestsPerSecond),
					a.config.API.RateLimit.Burst,
				),
				lastSeen: time.Now(),
			}
			a.rateLimiters[ip] = entry
		} else {
			entry.lastSeen = time.Now()
		}
		limiter := entry.limiter
		a.rateLimitersMu.Unlock()

		if !limiter.Allow() {
			metrics.RequestsThrottled.Inc()
			writeError(w, http.StatusTooManyRequests, "Too many requests.", nil, a.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanupRateLimiters periodically drops limiters for IPs not seen in a
// while to prevent unbounded growth.
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.rateLimitersMu.Lock()
			for ip, entry := range a.rateLimiters {
				if time.Since(entry.lastSeen) > 1*time.Hour {
					delete(a.rateLimiters, ip)
				}
			}
			a.rateLimitersMu.Unlock()
		case <-a.stopCh:
			return
		}
	}
}

// secretKeyMiddleware is the auth gate. The presented credential must
// match the instance secret exactly; a missing header and a wrong
// secret are indistinguishable to the caller, and no downstream work
// happens on deny.
func (a *API) secretKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(SecretKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.instance.SecretKey)) != 1 {
			metrics.AuthFailures.Inc()
			a.logger.Warnw("Rejected request with invalid secret key",
				"remote_ip", clientIP(r),
				"path", r.URL.Path,
				"request_id", requestID(r.Context()))
			respondJSON(w, errorResponse{Error: "Invalid secret key."}, http.StatusUnauthorized, a.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
