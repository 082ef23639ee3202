// Package ratelimit guards the paid upstream APIs with fixed per-IP windows
// and a global daily cap. Counters live in memory and reset on restart.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

const (
	burstWindow  = 5 * time.Minute
	hourlyWindow = time.Hour
	dailyWindow  = 24 * time.Hour
)

const (
	ReasonGlobalDaily = "Global daily limit exceeded"
	ReasonBurst       = "Burst limit exceeded (too many requests in 5 minutes)"
	ReasonHourly      = "Hourly limit exceeded"
	ReasonDaily       = "Daily limit exceeded"
)

type Limits struct {
	PerHour     int `json:"perHour"`
	Burst5Min   int `json:"burst5Min"`
	GlobalDaily int `json:"globalDaily"`
}

func DefaultLimits() Limits {
	return Limits{PerHour: 20, Burst5Min: 10, GlobalDaily: 100}
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	// RetryAfter is in whole seconds.
	RetryAfter int `json:"retryAfter,omitempty"`
}

type ActiveIPs struct {
	Hourly int `json:"hourly"`
	Burst  int `json:"burst"`
	Daily  int `json:"daily"`
}

type Status struct {
	GlobalDaily      int       `json:"globalDaily"`
	GlobalDailyLimit int       `json:"globalDailyLimit"`
	ActiveIPs        ActiveIPs `json:"activeIPs"`
	Limits           Limits    `json:"limits"`
}

type window struct {
	count   int
	resetAt time.Time
}

// counters holds one fixed window per client IP.
type counters struct {
	length  time.Duration
	windows map[string]*window
}

func newCounters(length time.Duration) *counters {
	return &counters{length: length, windows: map[string]*window{}}
}

func (c *counters) expire(now time.Time) {
	for ip, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, ip)
		}
	}
}

// full reports whether ip has used limit requests in its current window.
func (c *counters) full(ip string, limit int, now time.Time) (bool, time.Time) {
	w, ok := c.windows[ip]
	if !ok || !now.Before(w.resetAt) {
		return false, time.Time{}
	}
	return w.count >= limit, w.resetAt
}

func (c *counters) incr(ip string, now time.Time) {
	w, ok := c.windows[ip]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(c.length)}
		c.windows[ip] = w
	}
	w.count++
}

type Limiter struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time

	burst  *counters
	hourly *counters
	daily  *counters

	global        int
	globalResetAt time.Time
}

func New(limits Limits) *Limiter {
	l := &Limiter{
		limits: limits,
		now:    time.Now,
		burst:  newCounters(burstWindow),
		hourly: newCounters(hourlyWindow),
		daily:  newCounters(dailyWindow),
	}
	l.globalResetAt = l.now().Add(dailyWindow)
	return l
}

func (l *Limiter) expire(now time.Time) {
	l.burst.expire(now)
	l.hourly.expire(now)
	l.daily.expire(now)
	if !now.Before(l.globalResetAt) {
		l.global = 0
		l.globalResetAt = now.Add(dailyWindow)
	}
}

func retryAfter(now, resetAt time.Time) int {
	return int(math.Ceil(resetAt.Sub(now).Seconds()))
}

// Check decides whether ip may make another request and, if so, counts it.
// The global cap is checked first, then the burst, hourly and daily windows.
func (l *Limiter) Check(ip string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.expire(now)

	if l.global >= l.limits.GlobalDaily {
		return Decision{Reason: ReasonGlobalDaily, RetryAfter: retryAfter(now, l.globalResetAt)}
	}
	checks := []struct {
		c      *counters
		limit  int
		reason string
	}{
		{l.burst, l.limits.Burst5Min, ReasonBurst},
		{l.hourly, l.limits.PerHour, ReasonHourly},
		{l.daily, l.limits.PerHour * 24, ReasonDaily},
	}
	for _, chk := range checks {
		if full, resetAt := chk.c.full(ip, chk.limit, now); full {
			return Decision{Reason: chk.reason, RetryAfter: retryAfter(now, resetAt)}
		}
	}

	l.burst.incr(ip, now)
	l.hourly.incr(ip, now)
	l.daily.incr(ip, now)
	l.global++
	return Decision{Allowed: true}
}

func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expire(l.now())
	return Status{
		GlobalDaily:      l.global,
		GlobalDailyLimit: l.limits.GlobalDaily,
		ActiveIPs: ActiveIPs{
			Hourly: len(l.hourly.windows),
			Burst:  len(l.burst.windows),
			Daily:  len(l.daily.windows),
		},
		Limits: l.limits,
	}
}

// ClientIP returns the caller's address as seen by the edge proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	for _, h := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return "unknown"
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ClientIP(c.Request)
		d := l.Check(ip)
		if d.Allowed {
			c.Next()
			return
		}

		metrics.RateLimited.WithLabelValues(d.Reason).Inc()
		log.WithFields(log.Fields{
			"event":       "rate_limited",
			"ip":          ip,
			"endpoint":    c.Request.URL.Path,
			"reason":      d.Reason,
			"retry_after": d.RetryAfter,
		}).Warn("Request rate limited")

		c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":    false,
			"error":      "Rate limit exceeded",
			"message":    d.Reason,
			"retryAfter": d.RetryAfter,
		})
	}
}
