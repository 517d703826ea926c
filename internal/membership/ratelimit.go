// internal/membership/ratelimit.go
package membership

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedLogins bounds the number of per-email limiters kept in memory.
const maxTrackedLogins = 10_000

// loginLimiters hands out one token bucket per email. A bucket that has
// refilled completely carries no state and is dropped on the next sweep.
type loginLimiters struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	max     int
	buckets map[string]*rate.Limiter
}

func newLoginLimiters(every rate.Limit, burst, max int) *loginLimiters {
	return &loginLimiters{
		every:   every,
		burst:   burst,
		max:     max,
		buckets: make(map[string]*rate.Limiter),
	}
}

// allow takes one attempt for email at now.
func (l *loginLimiters) allow(email string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[email]
	if !ok {
		if len(l.buckets) >= l.max {
			l.sweep(now)
		}
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[email] = b
	}
	return b.AllowN(now, 1)
}

// sweep drops idle buckets, then arbitrary ones until there is room for one more.
func (l *loginLimiters) sweep(now time.Time) {
	for email, b := range l.buckets {
		if b.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, email)
		}
	}
	for email := range l.buckets {
		if len(l.buckets) < l.max {
			return
		}
		delete(l.buckets, email)
	}
}

func (l *loginLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
