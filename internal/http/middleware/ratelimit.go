package middleware

import (
	"net/http"
	"sync"
	"time"
)

// WebhookThrottle caps request rates on the unauthenticated webhook surface.
// Payment providers retry aggressively; a per-caller token bucket keeps one
// noisy notifier from monopolizing the verify path.
type WebhookThrottle struct {
	mu       sync.Mutex
	callers  map[string]*tokenBucket
	perSec   float64
	capacity int
}

type tokenBucket struct {
	remaining float64
	refilled  time.Time
}

// NewWebhookThrottle allows perSec sustained requests per caller with bursts
// up to capacity. Idle callers are evicted in the background.
func NewWebhookThrottle(perSec float64, capacity int) *WebhookThrottle {
	t := &WebhookThrottle{
		callers:  make(map[string]*tokenBucket),
		perSec:   perSec,
		capacity: capacity,
	}
	go t.evictIdle()
	return t
}

// Allow spends one token for the caller, refilling by elapsed time first.
func (t *WebhookThrottle) Allow(caller string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	b, ok := t.callers[caller]
	if !ok {
		b = &tokenBucket{remaining: float64(t.capacity), refilled: now}
		t.callers[caller] = b
	}

	b.remaining += now.Sub(b.refilled).Seconds() * t.perSec
	if b.remaining > float64(t.capacity) {
		b.remaining = float64(t.capacity)
	}
	b.refilled = now

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

func (t *WebhookThrottle) evictIdle() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for caller, b := range t.callers {
			if b.refilled.Before(cutoff) {
				delete(t.callers, caller)
			}
		}
		t.mu.Unlock()
	}
}

// RateLimit rejects callers over the limit with 429 so providers back off
// and redeliver later.
func RateLimit(perSec float64, capacity int) func(http.Handler) http.Handler {
	throttle := NewWebhookThrottle(perSec, capacity)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := r.RemoteAddr
			// RealIP runs earlier in the chain and sets X-Real-Ip.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				caller = xri
			}
			if !throttle.Allow(caller) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
